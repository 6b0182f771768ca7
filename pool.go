package mosaic

import (
	"fmt"
	"sync"
)

// DefaultPoolCapacity bounds the number of simultaneously open per-file
// decoders a group keeps around.
const DefaultPoolCapacity = 16

// DecoderPool is a bounded cache of opened per-file decoders keyed by
// path. Decoders are created lazily through the factory; once the bound is
// reached an idle decoder is recycled onto the new path instead of growing
// the pool. Checkout transfers exclusive ownership of the decoder to the
// caller until the matching Checkin.
//
// All three operations share one critical section so that concurrent
// region reads may target different files in parallel without two
// goroutines ever touching the same pool slot.
type DecoderPool struct {
	mu       sync.Mutex
	capacity int
	factory  DecoderFactory
	entries  map[string]Decoder
	closed   bool
}

// NewDecoderPool creates a pool holding at most capacity open decoders.
// A capacity < 1 falls back to DefaultPoolCapacity.
func NewDecoderPool(capacity int, factory DecoderFactory) *DecoderPool {
	if capacity < 1 {
		capacity = DefaultPoolCapacity
	}
	return &DecoderPool{
		capacity: capacity,
		factory:  factory,
		entries:  make(map[string]Decoder, capacity),
	}
}

// Checkout returns a decoder opened on path. A pooled decoder for the
// exact path is handed out as-is; otherwise an idle decoder is recycled
// onto the new path (its Open closes the previous association first), or a
// fresh instance is created while the pool is below capacity. A failed
// open propagates and leaves nothing checked out.
func (p *DecoderPool) Checkout(path string, flags OpenFlag) (Decoder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("mosaic: checkout %q: %w", path, ErrNotOpen)
	}
	if dec, ok := p.entries[path]; ok {
		delete(p.entries, path)
		return dec, nil
	}

	var dec Decoder
	if len(p.entries) >= p.capacity {
		// Recycle an arbitrary idle decoder onto the new path.
		for key, idle := range p.entries {
			delete(p.entries, key)
			dec = idle
			break
		}
	} else {
		dec = p.factory()
	}
	if err := dec.Open(path, flags); err != nil {
		dec.Close()
		return nil, fmt.Errorf("mosaic: open decoder for %q: %w", path, err)
	}
	return dec, nil
}

// Checkin stores the decoder back into the pool under path. A decoder
// already pooled under the same path is displaced and closed rather than
// silently leaked.
func (p *DecoderPool) Checkin(path string, dec Decoder) {
	if dec == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		dec.Close()
		return
	}
	if displaced, ok := p.entries[path]; ok && displaced != dec {
		displaced.Close()
	} else if !ok && len(p.entries) >= p.capacity {
		// Pooling this decoder would exceed the bound; drop it instead.
		dec.Close()
		return
	}
	p.entries[path] = dec
}

// CloseAll closes every pooled decoder and empties the pool. Safe to call
// on an empty or already-closed pool. Decoders still checked out are the
// caller's to close.
func (p *DecoderPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, dec := range p.entries {
		dec.Close()
		delete(p.entries, key)
	}
	p.closed = true
}

// Len returns the number of currently pooled (idle) decoders.
func (p *DecoderPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
