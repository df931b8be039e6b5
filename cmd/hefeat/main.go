// Command hefeat extracts per-region feature vectors from an H&E image and
// writes them as a CSV table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	_ "golang.org/x/image/tiff"

	"histofeat/internal/config"
	"histofeat/internal/export"
	"histofeat/internal/features"
	"histofeat/internal/roi"
	"histofeat/internal/segmentation"
)

// roiFile is the on-disk ROI set produced by the segmentation tools.
type roiFile struct {
	Regions []roiEntry `json:"regions"`
}

// roiEntry shadows the region's type field with a pointer so an absent
// type can be told apart from an explicit "vessel" and classified from the
// name prefix instead.
type roiEntry struct {
	roi.Region
	Type *roi.Type `json:"type"`
}

func main() {
	imagePath := flag.String("image", "", "Path to H&E image (TIFF, PNG, or JPEG)")
	roisPath := flag.String("rois", "", "Path to region JSON file")
	segmentVessels := flag.Bool("segment-vessels", false, "Run threshold-based vessel segmentation instead of reading vessels from -rois")
	configPath := flag.String("config", "", "Path to YAML settings file (optional)")
	outPath := flag.String("out", "", "Output CSV path (default stdout)")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: hefeat -image <path> [-rois regions.json] [-segment-vessels] [-config settings.yaml] [-out features.csv]")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

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
	bounds := img.Bounds()
	logger.Info("loaded image", "format", format, "width", bounds.Dx(), "height", bounds.Dy())

	var collections roi.Collections
	if *roisPath != "" {
		collections, err = loadRegions(*roisPath)
		if err != nil {
			logger.Error("failed to load regions", "error", err)
			os.Exit(1)
		}
	}
	if *segmentVessels {
		vessels, err := segmentation.SegmentVessels(img, cfg.Vessel, logger)
		if err != nil {
			logger.Error("vessel segmentation failed", "error", err)
			os.Exit(1)
		}
		collections.Vessels = vessels
	}
	if collections.Count() == 0 {
		logger.Error("no regions to measure; pass -rois and/or -segment-vessels")
		os.Exit(1)
	}

	engine, err := features.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	table, diags, err := engine.Extract(context.Background(), imageID(*imagePath), img, collections)
	if err != nil {
		logger.Error("extraction aborted", "error", err)
		os.Exit(1)
	}
	for _, d := range diags {
		logger.Warn("region skipped", "region", d.Region, "type", d.Type.String(), "error", d.Err)
	}
	logger.Info("extraction finished",
		"regions", len(table), "skipped", len(diags),
		"stain_separation", engine.StainSeparationAvailable())

	out := os.Stdout
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			logger.Error("failed to create output file", "error", err)
			os.Exit(1)
		}
		defer out.Close()
	}
	if err := export.Write(out, table); err != nil {
		logger.Error("failed to write CSV", "error", err)
		os.Exit(1)
	}
}

// loadRegions reads a region JSON file and groups its regions by type.
// Regions without a type field are classified from their name prefix.
func loadRegions(path string) (roi.Collections, error) {
	var c roi.Collections

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read regions: %w", err)
	}
	var file roiFile
	if err := json.Unmarshal(data, &file); err != nil {
		return c, fmt.Errorf("parse regions: %w", err)
	}

	for _, entry := range file.Regions {
		r := entry.Region
		if entry.Type != nil {
			r.Type = *entry.Type
		} else {
			r.Type = roi.TypeFromName(r.Name)
		}
		switch r.Type {
		case roi.TypeNucleus:
			c.Nuclei = append(c.Nuclei, r)
		case roi.TypeCytoplasm:
			c.Cytoplasms = append(c.Cytoplasms, r)
		case roi.TypeCell:
			c.Cells = append(c.Cells, r)
		default:
			c.Vessels = append(c.Vessels, r)
		}
	}
	return c, nil
}

// imageID derives the composite-key prefix from the image path.
func imageID(path string) string {
	return filepath.Base(path)
}
