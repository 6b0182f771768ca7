package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icy-imaging/mosaic"
)

var (
	outFile    string
	rectFlag   string
	resolution int
	zIndex     int
	tIndex     int
	cIndex     int
	minimalMD  bool
)

var rootCmd = &cobra.Command{
	Use:           "mosaic",
	Short:         "inspect and extract regions from tiled multi-file mosaics",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var infoCmd = &cobra.Command{
	Use:   "info descriptor.yaml",
	Short: "print the synthesized metadata of a file group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := mosaic.OpenDefault
		if minimalMD {
			flags |= mosaic.OpenMinimalMetadata
		}
		grp, err := mosaic.Open(args[0], flags)
		if err != nil {
			return err
		}
		defer grp.Close()

		md, err := grp.GetMetadata()
		if err != nil {
			return err
		}
		fmt.Printf("name:      %s\n", md.Name)
		fmt.Printf("size:      %d x %d, Z=%d T=%d C=%d (%s)\n",
			md.SizeX, md.SizeY, md.SizeZ, md.SizeT, md.SizeC, md.PixelType)
		fmt.Printf("tile:      %d x %d\n", grp.GetTileWidth(0), grp.GetTileHeight(0))
		fmt.Printf("stitched:  %v\n", grp.IsStitchedImage())
		if md.PixelSizeX > 0 {
			fmt.Printf("pixel:     %g x %g um\n", md.PixelSizeX, md.PixelSizeY)
		}
		if md.TimeInterval > 0 {
			fmt.Printf("interval:  %g s\n", md.TimeInterval)
		}
		for i, ch := range md.Channels {
			fmt.Printf("channel %d: %s\n", i, ch.Name)
		}
		if b := grp.PhysicalBounds(); !b.IsEmpty() {
			fmt.Printf("stage:     [%g, %g] - [%g, %g] um\n", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract descriptor.yaml",
	Short: "extract a region of the mosaic into a PNG file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grp, err := mosaic.Open(args[0], mosaic.OpenMinimalMetadata)
		if err != nil {
			return err
		}
		defer grp.Close()

		rect, err := parseRect(rectFlag)
		if err != nil {
			return err
		}
		plane, err := grp.GetImage(0, resolution, rect, zIndex, tIndex, cIndex)
		if err != nil {
			return err
		}
		return writePNG(outFile, plane.Render())
	},
}

var thumbCmd = &cobra.Command{
	Use:   "thumb descriptor.yaml",
	Short: "write a thumbnail of the whole mosaic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grp, err := mosaic.Open(args[0], mosaic.OpenMinimalMetadata)
		if err != nil {
			return err
		}
		defer grp.Close()

		img, err := grp.GetThumbnail(0)
		if err != nil {
			return err
		}
		return writePNG(outFile, img)
	},
}

// parseRect parses "x,y,width,height". An empty string selects the full
// extent.
func parseRect(s string) (*mosaic.Rectangle, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("rect must be x,y,width,height, got %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("rect component %q: %w", p, err)
		}
		vals[i] = v
	}
	return &mosaic.Rectangle{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	infoCmd.Flags().BoolVar(&minimalMD, "minimal", false, "skip per-file metadata queries")

	extractCmd.Flags().StringVarP(&outFile, "output", "o", "region.png", "destination PNG file")
	extractCmd.Flags().StringVar(&rectFlag, "rect", "", "region as x,y,width,height (default: full extent)")
	extractCmd.Flags().IntVar(&resolution, "res", 0, "power-of-two downscale level")
	extractCmd.Flags().IntVarP(&zIndex, "z", "z", 0, "Z slice")
	extractCmd.Flags().IntVarP(&tIndex, "t", "t", 0, "time point")
	extractCmd.Flags().IntVarP(&cIndex, "c", "c", -1, "channel (-1 composes all)")

	thumbCmd.Flags().StringVarP(&outFile, "output", "o", "thumb.png", "destination PNG file")

	rootCmd.AddCommand(infoCmd, extractCmd, thumbCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
