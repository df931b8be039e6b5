// Package regionstats computes geometric and intensity descriptors for one
// region against one image. All failure modes degrade to bounding-box
// fallback values; Measure never returns an error and never produces NaN.
package regionstats

import (
	"image"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"histofeat/internal/roi"
	"histofeat/pkg/geometry"
)

// Descriptors is the fixed set of scalar measurements for one region
// against one image. Geometry fields are only meaningful when produced by
// Measure; MeasureIntensity fills the intensity block alone.
type Descriptors struct {
	// Basic geometry
	Area   float64
	X, Y   float64 // geometric centroid
	XM, YM float64 // intensity-weighted centroid
	BX, BY float64 // bounding box origin
	Width  float64
	Height float64
	Perim  float64

	// Shape
	Major, Minor, Angle float64 // best-fit ellipse
	Circ                float64
	Feret, MinFeret     float64
	FeretX, FeretY      float64 // first endpoint of the max diameter
	FeretAngle          float64
	AR, Round, Solidity float64

	// Intensity
	IntDen             float64
	Mean, StdDev, Mode float64
	Min, Max, Median   float64
	Skew, Kurt         float64
}

// pixelSample holds the rasterization of a region against an image.
type pixelSample struct {
	xs, ys []float64 // pixel center coordinates
	values []float64 // intensity at each pixel
}

// Measure computes the full descriptor set for a region against an image.
// Degenerate regions (empty boundary, zero rasterized area, malformed
// geometry from upstream shape subtraction) yield bounding-box-derived
// fallbacks instead of NaN.
func Measure(region roi.Region, img image.Image) Descriptors {
	sample := rasterize(region, img)
	bounds := region.Bounds()

	if len(sample.values) == 0 {
		return fallbackDescriptors(bounds)
	}

	var d Descriptors
	d.Area = float64(len(sample.values))
	d.BX = math.Floor(bounds.X)
	d.BY = math.Floor(bounds.Y)
	d.Width = bounds.Width
	d.Height = bounds.Height

	// Centroids
	var sumX, sumY, sumWX, sumWY, sumW float64
	for i := range sample.values {
		sumX += sample.xs[i]
		sumY += sample.ys[i]
		sumWX += sample.xs[i] * sample.values[i]
		sumWY += sample.ys[i] * sample.values[i]
		sumW += sample.values[i]
	}
	n := float64(len(sample.values))
	d.X = sumX / n
	d.Y = sumY / n
	if sumW > 0 {
		d.XM = sumWX / sumW
		d.YM = sumWY / sumW
	} else {
		d.XM = d.X
		d.YM = d.Y
	}

	// Perimeter from the boundary arc length; masks without a polygon fall
	// back to the bounding-box perimeter.
	if len(region.Boundary) >= 2 {
		d.Perim = geometry.PolygonPerimeter(region.Boundary)
	} else {
		d.Perim = 2 * (bounds.Width + bounds.Height)
	}

	fillShape(&d, region, sample, bounds)
	fillIntensity(&d, sample.values, d.Area)

	return d
}

// MeasureIntensity computes only the intensity block for a region against
// an image (used for the derived stain channels, where geometry would be
// identical to the original image's).
func MeasureIntensity(region roi.Region, img image.Image) Descriptors {
	sample := rasterize(region, img)
	var d Descriptors
	if len(sample.values) == 0 {
		return d
	}
	d.Area = float64(len(sample.values))
	fillIntensity(&d, sample.values, d.Area)
	return d
}

// fillShape populates the ellipse, Feret and derived shape ratios.
func fillShape(d *Descriptors, region roi.Region, sample pixelSample, bounds geometry.Rect) {
	major, minor, angle, ok := fitEllipse(sample.xs, sample.ys, d.Area)
	if !ok {
		major = math.Max(bounds.Width, bounds.Height)
		minor = math.Min(bounds.Width, bounds.Height)
		angle = 0
	}
	d.Major = major
	d.Minor = minor
	d.Angle = angle

	if d.Perim > 0 {
		d.Circ = 4.0 * math.Pi * d.Area / (d.Perim * d.Perim)
	} else {
		d.Circ = 1.0
	}

	if f, ok := feretValues(region.Boundary); ok {
		d.Feret = f.Max
		d.FeretX = f.StartX
		d.FeretY = f.StartY
		d.FeretAngle = f.Angle
		d.MinFeret = f.Min
	} else {
		center := bounds.Center()
		d.Feret = math.Max(bounds.Width, bounds.Height)
		d.FeretX = center.X
		d.FeretY = center.Y
		d.FeretAngle = 0
		d.MinFeret = math.Min(bounds.Width, bounds.Height)
	}

	if d.Minor > 0 {
		d.AR = d.Major / d.Minor
		d.Round = d.Minor / d.Major
	} else {
		d.AR = 1.0
		d.Round = 1.0
	}

	d.Solidity = solidity(region.Boundary, geometry.PolygonArea(region.Boundary))
}

// fillIntensity populates the intensity statistics block from raw pixel
// values. The slice is sorted in place.
func fillIntensity(d *Descriptors, values []float64, area float64) {
	sort.Float64s(values)

	d.Min = values[0]
	d.Max = values[len(values)-1]
	d.Mean = stat.Mean(values, nil)
	d.IntDen = area * d.Mean
	d.Median = values[len(values)/2]
	d.Mode = histogramMode(values)

	if len(values) > 1 {
		d.StdDev = stat.StdDev(values, nil)
		d.Skew = sanitize(stat.Skew(values, nil))
		d.Kurt = sanitize(stat.ExKurtosis(values, nil))
	}
}

// solidity is area over convex-hull area, falling back to 1.0 whenever the
// hull is degenerate or cannot be built.
func solidity(boundary []geometry.Point2D, area float64) float64 {
	if len(boundary) < 3 || area <= 0 {
		return 1.0
	}
	hull := geometry.ConvexHull(boundary)
	hullArea := geometry.PolygonArea(hull)
	if hullArea <= 0 {
		return 1.0
	}
	return area / hullArea
}

// rasterize collects the pixel centers and intensities covered by the
// region, clipped to the image bounds.
func rasterize(region roi.Region, img image.Image) pixelSample {
	var sample pixelSample
	if img == nil {
		return sample
	}

	rb := region.Bounds()
	ib := img.Bounds()

	x0 := int(math.Floor(rb.X))
	y0 := int(math.Floor(rb.Y))
	x1 := int(math.Ceil(rb.X + rb.Width))
	y1 := int(math.Ceil(rb.Y + rb.Height))

	if x0 < ib.Min.X {
		x0 = ib.Min.X
	}
	if y0 < ib.Min.Y {
		y0 = ib.Min.Y
	}
	if x1 > ib.Max.X {
		x1 = ib.Max.X
	}
	if y1 > ib.Max.Y {
		y1 = ib.Max.Y
	}

	gray, _ := img.(*image.Gray)

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			cx := float64(x) + 0.5
			cy := float64(y) + 0.5
			if !region.Contains(cx, cy) {
				continue
			}
			var v float64
			if gray != nil {
				v = float64(gray.GrayAt(x, y).Y)
			} else {
				v = float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
			sample.xs = append(sample.xs, cx)
			sample.ys = append(sample.ys, cy)
			sample.values = append(sample.values, v)
		}
	}
	return sample
}

// histogramMode returns the most frequent 8-bit value, keeping the lowest
// value on ties. Input must be sorted.
func histogramMode(sorted []float64) float64 {
	var counts [256]int
	for _, v := range sorted {
		idx := int(v)
		if idx < 0 {
			idx = 0
		}
		if idx > 255 {
			idx = 255
		}
		counts[idx]++
	}
	best, bestCount := 0, 0
	for i, c := range counts {
		if c > bestCount {
			best = i
			bestCount = c
		}
	}
	return float64(best)
}

// fallbackDescriptors derives every descriptor from the bounding box alone.
func fallbackDescriptors(bounds geometry.Rect) Descriptors {
	w := bounds.Width
	h := bounds.Height
	center := bounds.Center()

	d := Descriptors{
		Area:     w * h,
		X:        center.X,
		Y:        center.Y,
		XM:       center.X,
		YM:       center.Y,
		BX:       math.Floor(bounds.X),
		BY:       math.Floor(bounds.Y),
		Width:    w,
		Height:   h,
		Perim:    2 * (w + h),
		Major:    math.Max(w, h),
		Minor:    math.Min(w, h),
		Circ:     1.0,
		Feret:    math.Max(w, h),
		FeretX:   center.X,
		FeretY:   center.Y,
		MinFeret: math.Min(w, h),
		AR:       1.0,
		Round:    1.0,
		Solidity: 1.0,
	}
	if w > 0 && h > 0 {
		d.AR = math.Max(w, h) / math.Min(w, h)
		d.Round = math.Min(w, h) / math.Max(w, h)
	}
	return d
}

// sanitize maps NaN/Inf moments (constant-intensity regions) to 0.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
