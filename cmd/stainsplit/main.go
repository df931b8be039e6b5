// Command stainsplit runs H&E color deconvolution on an image and writes
// the three channel images as PNGs, for visual verification of the stain
// matrix.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/tiff"

	"histofeat/internal/stain"
)

func main() {
	imagePath := flag.String("image", "", "Path to H&E image (TIFF, PNG, or JPEG)")
	outDir := flag.String("outdir", ".", "Directory for the channel PNGs")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: stainsplit -image <path> [-outdir <dir>]")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	f, err := os.Open(*imagePath)
	if err != nil {
		logger.Error("failed to open image", "error", err)
		os.Exit(1)
	}
	img, format, err := image.Decode(f)
	f.Close()
	if err != nil {
		logger.Error("failed to decode image", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded image", "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	separator, err := stain.NewSeparator(stain.DefaultHE(), logger)
	if err != nil {
		logger.Error("failed to build separator", "error", err)
		os.Exit(1)
	}

	set := separator.Separate(img)
	if set.Fallback {
		logger.Warn("input was not RGB; channels are grayscale fallbacks")
	}

	base := filepath.Base(*imagePath)
	outputs := map[string]*image.Gray{
		"hematoxylin_" + base + ".png": set.Hematoxylin,
		"eosin_" + base + ".png":       set.Eosin,
		"residual_" + base + ".png":    set.Residual,
	}
	for name, channel := range outputs {
		path := filepath.Join(*outDir, name)
		out, err := os.Create(path)
		if err != nil {
			logger.Error("failed to create output", "path", path, "error", err)
			os.Exit(1)
		}
		if err := png.Encode(out, channel); err != nil {
			out.Close()
			logger.Error("failed to encode PNG", "path", path, "error", err)
			os.Exit(1)
		}
		out.Close()
		logger.Info("wrote channel", "path", path)
	}
}
