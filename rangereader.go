package mosaic

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// sourceReader is the random-access surface the concrete decoders need
// from a source file, whether it lives on disk or behind HTTP.
type sourceReader interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
	Size() int64
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// openSource opens a local file or an http(s) URL for random access.
func openSource(path string) (sourceReader, error) {
	if isURL(path) {
		return NewRangeReader(path, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{File: f, size: st.Size()}, nil
}

type fileSource struct {
	*os.File
	size int64
}

func (f *fileSource) Size() int64 { return f.size }

// RangeReader reads a remote source file through HTTP range requests. It
// satisfies sourceReader so decoders can treat remote tiles exactly like
// local ones; ReadAt is the primary access path since decoders fetch
// whole plane rows at known offsets.
type RangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64

	mu  sync.Mutex
	pos int64
}

// NewRangeReader probes url with a HEAD request and returns a reader over
// it. A nil client gets a default with 30s timeouts.
func NewRangeReader(url string, client *fasthttp.Client) (*RangeReader, error) {
	if client == nil {
		client = &fasthttp.Client{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	}
	rr := &RangeReader{url: url, client: client}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodHead)
	if err := client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("mosaic: HEAD %s: %w", url, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("mosaic: HEAD %s: status %d", url, resp.StatusCode())
	}
	if n := resp.Header.ContentLength(); n > 0 {
		rr.size = int64(n)
	} else {
		return nil, fmt.Errorf("mosaic: HEAD %s: no content length", url)
	}
	return rr, nil
}

// Size returns the remote file size in bytes.
func (rr *RangeReader) Size() int64 { return rr.size }

// Close releases nothing; range requests hold no connection state here.
func (rr *RangeReader) Close() error { return nil }

// ReadAt fetches len(p) bytes at offset off with a single range request.
func (rr *RangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= rr.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	if end >= rr.size {
		end = rr.size - 1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderRange, fmt.Sprintf("bytes=%d-%d", off, end))

	if err := rr.client.Do(req, resp); err != nil {
		return 0, fmt.Errorf("mosaic: range %s: %w", rr.url, err)
	}
	status := resp.StatusCode()
	if status != fasthttp.StatusPartialContent && status != fasthttp.StatusOK {
		return 0, fmt.Errorf("mosaic: range %s: status %d", rr.url, status)
	}

	n := copy(p, resp.Body())
	if int64(n) < int64(len(p)) && off+int64(n) >= rr.size {
		return n, io.EOF
	}
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// Read reads from the seek position.
func (rr *RangeReader) Read(p []byte) (int, error) {
	rr.mu.Lock()
	pos := rr.pos
	rr.mu.Unlock()

	n, err := rr.ReadAt(p, pos)

	rr.mu.Lock()
	rr.pos = pos + int64(n)
	rr.mu.Unlock()
	return n, err
}

// Seek sets the position for the next Read.
func (rr *RangeReader) Seek(offset int64, whence int) (int64, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = rr.pos + offset
	case io.SeekEnd:
		pos = rr.size + offset
	default:
		return 0, fmt.Errorf("mosaic: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("mosaic: negative seek position %d", pos)
	}
	rr.pos = pos
	return pos, nil
}
