// Package segmentation provides the threshold-based vessel detection stage
// that feeds region collections into feature extraction. Vessel lumens in
// H&E sections appear as bright (near-white) particles, so a simple
// brightness threshold plus particle analysis recovers them.
package segmentation

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"histofeat/internal/config"
	"histofeat/internal/roi"
	"histofeat/pkg/geometry"
)

// SegmentVessels detects vessel lumen regions in an RGB image. Contours of
// bright particles within the configured area range become vessel regions
// named Vessel_1, Vessel_2, ... in detection order.
func SegmentVessels(img image.Image, cfg config.VesselSettings, logger *slog.Logger) ([]roi.Region, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	mat, err := imageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	// Binary mask of candidate lumen pixels.
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, float32(cfg.Threshold), 255, gocv.ThresholdBinary)

	// Close small gaps in lumen walls before particle analysis.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{3, 3})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []roi.Region
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < cfg.MinArea || (cfg.MaxArea > 0 && area > cfg.MaxArea) {
			continue
		}

		boundary := make([]geometry.Point2D, 0, contour.Size())
		for j := 0; j < contour.Size(); j++ {
			pt := contour.At(j)
			boundary = append(boundary, geometry.Point2D{X: float64(pt.X), Y: float64(pt.Y)})
		}
		if len(boundary) < 3 {
			continue
		}

		regions = append(regions, roi.Region{
			Name:     fmt.Sprintf("Vessel_%d", len(regions)+1),
			Type:     roi.TypeVessel,
			Boundary: boundary,
		})
	}

	logger.Info("vessel segmentation completed",
		"candidates", contours.Size(), "vessels", len(regions), "threshold", cfg.Threshold)
	return regions, nil
}

// imageToMat converts a Go image.Image to a BGR Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), fmt.Errorf("empty image %dx%d", w, h)
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}
	return mat, nil
}
