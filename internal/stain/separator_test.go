package stain

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeparator(t *testing.T) *Separator {
	t.Helper()
	s, err := NewSeparator(DefaultHE(), nil)
	require.NoError(t, err)
	return s
}

// checkerboard returns a 2x2 RGB image alternating white and a stain-like
// pink.
func checkerboard() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	white := color.RGBA{255, 255, 255, 255}
	pink := color.RGBA{200, 120, 160, 255}
	img.SetRGBA(0, 0, white)
	img.SetRGBA(1, 0, pink)
	img.SetRGBA(0, 1, pink)
	img.SetRGBA(1, 1, white)
	return img
}

func TestNormalizedVectorsDeriveResidual(t *testing.T) {
	s := newSeparator(t)
	v := s.Vectors()

	for i := 0; i < 3; i++ {
		norm := math.Sqrt(v[i][0]*v[i][0] + v[i][1]*v[i][1] + v[i][2]*v[i][2])
		assert.InDelta(t, 1.0, norm, 1e-12, "row %d should be unit length", i)
	}

	// The residual row is orthogonal to hematoxylin and eosin.
	dotH := v[2][0]*v[0][0] + v[2][1]*v[0][1] + v[2][2]*v[0][2]
	dotE := v[2][0]*v[1][0] + v[2][1]*v[1][1] + v[2][2]*v[1][2]
	assert.InDelta(t, 0.0, dotH, 1e-12)
	assert.InDelta(t, 0.0, dotE, 1e-12)
}

func TestInverseRoundTripsOpticalDensity(t *testing.T) {
	s := newSeparator(t)
	v := s.Vectors()
	inv := s.Inverse()

	// Arbitrary density vectors must survive inverse-then-forward within
	// floating-point tolerance.
	densities := [][3]float64{
		{0.1, 0.2, 0.3},
		{1.5, 0.0, 0.7},
		{0.0, 0.0, 0.0},
	}
	for _, od := range densities {
		var conc [3]float64
		for i := 0; i < 3; i++ {
			conc[i] = inv[i][0]*od[0] + inv[i][1]*od[1] + inv[i][2]*od[2]
		}
		for j := 0; j < 3; j++ {
			back := v[0][j]*conc[0] + v[1][j]*conc[1] + v[2][j]*conc[2]
			assert.InDelta(t, od[j], back, 1e-6)
		}
	}
}

func TestSeparateIsDeterministic(t *testing.T) {
	s := newSeparator(t)

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x*7 + y*13) % 256),
				G: uint8((x*3 + y*29) % 256),
				B: uint8((x*11 + y*5) % 256),
				A: 255,
			})
		}
	}

	first := s.Separate(img)
	second := s.Separate(img)

	require.False(t, first.Fallback)
	assert.Equal(t, first.Hematoxylin.Pix, second.Hematoxylin.Pix)
	assert.Equal(t, first.Eosin.Pix, second.Eosin.Pix)
	assert.Equal(t, first.Residual.Pix, second.Residual.Pix)
}

func TestOpticalDensityEpsilonBoundary(t *testing.T) {
	// At exactly 1/255 the density is 0, not -log10 of a tiny value.
	assert.Equal(t, 0.0, opticalDensity(1.0/255.0))
	assert.Equal(t, 0.0, opticalDensity(0.0))
	assert.Greater(t, opticalDensity(2.0/255.0), 0.0)
}

func TestSeparateMatchesScalarTransform(t *testing.T) {
	s := newSeparator(t)
	img := checkerboard()
	set := s.Separate(img)
	require.False(t, set.Fallback)

	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			c := img.RGBAAt(x, y)
			hema, eosin, resid := s.deconvolvePixel(
				float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0)
			assert.Equal(t, hema, set.Hematoxylin.GrayAt(x, y).Y)
			assert.Equal(t, eosin, set.Eosin.GrayAt(x, y).Y)
			assert.Equal(t, resid, set.Residual.GrayAt(x, y).Y)
		}
	}

	// White pixels carry no stain: full transmittance in every channel.
	assert.Equal(t, uint8(255), set.Hematoxylin.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), set.Eosin.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), set.Residual.GrayAt(0, 0).Y)
}

func TestSeparateFallbackForGrayscale(t *testing.T) {
	s := newSeparator(t)

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 16)
	}

	set := s.Separate(gray)
	require.True(t, set.Fallback)
	assert.Equal(t, set.Hematoxylin.Pix, set.Eosin.Pix)
	assert.Equal(t, set.Hematoxylin.Pix, set.Residual.Pix)
	assert.Equal(t, 4, set.Hematoxylin.Bounds().Dx())
}

func TestSeparateFallbackForNilAndEmpty(t *testing.T) {
	s := newSeparator(t)

	set := s.Separate(nil)
	require.True(t, set.Fallback)
	assert.Zero(t, set.Hematoxylin.Bounds().Dx())

	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))
	set = s.Separate(empty)
	assert.True(t, set.Fallback)
}

func TestScaleTransmittanceRounding(t *testing.T) {
	assert.Equal(t, uint8(255), scaleTransmittance(1.0))
	assert.Equal(t, uint8(255), scaleTransmittance(2.0))
	assert.Equal(t, uint8(0), scaleTransmittance(0.0))
	assert.Equal(t, uint8(0), scaleTransmittance(-0.5))
	// Round-half-up at the midpoint: 0.5/255 scales to 0.5 -> rounds to 128
	assert.Equal(t, uint8(128), scaleTransmittance(0.5))
}
