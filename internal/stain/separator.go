// Package stain implements color deconvolution of H&E-stained RGB images
// into per-stain grayscale channels (Ruifrok & Johnston method).
package stain

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// minTransmittance is the optical-density epsilon: channel values at or
// below 1/255 map to density 0 instead of -log10(0).
const minTransmittance = 1.0 / 255.0

// Vectors holds the reference stain matrix: one unit RGB optical-density
// vector per row (hematoxylin, eosin, residual).
type Vectors [3][3]float64

// DefaultHE returns the standard H&E stain vectors (Ruifrok & Johnston,
// matching Fiji's color deconvolution). The residual row is left zero and
// derived as the cross product of the first two rows at normalization time.
func DefaultHE() Vectors {
	return Vectors{
		{0.650, 0.704, 0.286}, // hematoxylin
		{0.072, 0.990, 0.105}, // eosin
		{0.000, 0.000, 0.000}, // residual, derived
	}
}

// normalized returns the vectors with the residual row derived (when zero)
// and every row scaled to unit length.
func (v Vectors) normalized() Vectors {
	m := v
	if m[2][0] == 0 && m[2][1] == 0 && m[2][2] == 0 {
		m[2][0] = m[0][1]*m[1][2] - m[0][2]*m[1][1]
		m[2][1] = m[0][2]*m[1][0] - m[0][0]*m[1][2]
		m[2][2] = m[0][0]*m[1][1] - m[0][1]*m[1][0]
	}
	for i := 0; i < 3; i++ {
		norm := math.Sqrt(m[i][0]*m[i][0] + m[i][1]*m[i][1] + m[i][2]*m[i][2])
		if norm > 0 {
			inv := 1.0 / norm
			for j := 0; j < 3; j++ {
				m[i][j] *= inv
			}
		}
	}
	return m
}

// ChannelSet holds the three derived single-channel images for one source
// image. Fallback is true when the input was not RGB-compatible and all
// three channels are plain grayscale conversions instead.
type ChannelSet struct {
	Hematoxylin *image.Gray
	Eosin       *image.Gray
	Residual    *image.Gray
	Fallback    bool
}

// Separator performs the per-pixel deconvolution transform. The inverse
// stain matrix is computed once at construction and reused for every image.
type Separator struct {
	vectors Vectors
	inverse [3][3]float64
	logger  *slog.Logger
}

// NewSeparator builds a Separator from the given stain vectors. It fails
// only when the normalized matrix is singular.
func NewSeparator(v Vectors, logger *slog.Logger) (*Separator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	norm := v.normalized()
	dense := mat.NewDense(3, 3, []float64{
		norm[0][0], norm[0][1], norm[0][2],
		norm[1][0], norm[1][1], norm[1][2],
		norm[2][0], norm[2][1], norm[2][2],
	})

	var inv mat.Dense
	if err := inv.Inverse(dense); err != nil {
		return nil, fmt.Errorf("invert stain matrix: %w", err)
	}

	s := &Separator{vectors: norm, logger: logger}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s.inverse[i][j] = inv.At(i, j)
		}
	}
	return s, nil
}

// Vectors returns the normalized stain vectors in use.
func (s *Separator) Vectors() Vectors {
	return s.vectors
}

// Inverse returns the cached inverse stain matrix.
func (s *Separator) Inverse() [3][3]float64 {
	return s.inverse
}

// Separate unmixes an RGB image into per-stain channels. It never fails:
// input that is not 3-channel RGB (nil, empty, or grayscale) produces a
// fallback ChannelSet whose three channels are a plain grayscale conversion
// of the input, so intensity-only features remain computable downstream.
func (s *Separator) Separate(img image.Image) *ChannelSet {
	if !isRGBCompatible(img) {
		s.logger.Warn("image is not RGB, using grayscale fallback channels")
		return s.fallback(img)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rect := image.Rect(0, 0, w, h)

	set := &ChannelSet{
		Hematoxylin: image.NewGray(rect),
		Eosin:       image.NewGray(rect),
		Residual:    image.NewGray(rect),
	}

	// Rows are independent: split them across workers. Each worker writes
	// disjoint slices of the output buffers, so the result is deterministic.
	workers := runtime.NumCPU()
	if workers > h {
		workers = h
	}
	if workers < 1 {
		workers = 1
	}
	rowsPerWorker := (h + workers - 1) / workers

	var wg sync.WaitGroup
	for wi := 0; wi < workers; wi++ {
		startRow := wi * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if endRow > h {
			endRow = h
		}
		if startRow >= endRow {
			continue
		}

		wg.Add(1)
		go func(startRow, endRow int) {
			defer wg.Done()
			for y := startRow; y < endRow; y++ {
				for x := 0; x < w; x++ {
					r16, g16, b16, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					hema, eosin, resid := s.deconvolvePixel(
						float64(r16>>8)/255.0,
						float64(g16>>8)/255.0,
						float64(b16>>8)/255.0,
					)
					idx := y*set.Hematoxylin.Stride + x
					set.Hematoxylin.Pix[idx] = hema
					set.Eosin.Pix[idx] = eosin
					set.Residual.Pix[idx] = resid
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	return set
}

// deconvolvePixel transforms one pixel's normalized RGB values into the
// three 8-bit stain transmittance values.
func (s *Separator) deconvolvePixel(r, g, b float64) (uint8, uint8, uint8) {
	rod := opticalDensity(r)
	god := opticalDensity(g)
	bod := opticalDensity(b)

	var out [3]uint8
	for i := 0; i < 3; i++ {
		conc := s.inverse[i][0]*rod + s.inverse[i][1]*god + s.inverse[i][2]*bod
		trans := math.Pow(10.0, -conc)
		out[i] = scaleTransmittance(trans)
	}
	return out[0], out[1], out[2]
}

// opticalDensity converts a normalized channel value to optical density.
// Values at or below the epsilon map to exactly 0.
func opticalDensity(v float64) float64 {
	if v > minTransmittance {
		return -math.Log10(v)
	}
	return 0.0
}

// scaleTransmittance clamps a transmittance to [0,1] and scales it to an
// 8-bit value with round-half-up.
func scaleTransmittance(t float64) uint8 {
	if t >= 1.0 {
		return 255
	}
	if t <= 0.0 {
		return 0
	}
	return uint8(t*255.0 + 0.5)
}

// fallback builds a ChannelSet where every channel is the grayscale
// conversion of the input.
func (s *Separator) fallback(img image.Image) *ChannelSet {
	gray := toGray(img)
	set := &ChannelSet{
		Hematoxylin: gray,
		Eosin:       cloneGray(gray),
		Residual:    cloneGray(gray),
		Fallback:    true,
	}
	return set
}

// isRGBCompatible reports whether the image is a 3-channel color image.
func isRGBCompatible(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return false
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return false
	}
	return true
}

// toGray converts any image to an 8-bit grayscale buffer anchored at the
// origin. Nil or empty images yield an empty buffer.
func toGray(img image.Image) *image.Gray {
	if img == nil {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}

	flat := imaging.Grayscale(img)
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// imaging.Grayscale equalizes R=G=B; any channel carries the value.
			gray.Pix[y*gray.Stride+x] = flat.Pix[y*flat.Stride+x*4]
		}
	}
	return gray
}

// cloneGray returns an independent copy of a grayscale buffer.
func cloneGray(src *image.Gray) *image.Gray {
	dst := image.NewGray(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
