package features

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histofeat/internal/config"
	"histofeat/internal/roi"
	"histofeat/pkg/geometry"
)

func TestFeatureNamesSchema(t *testing.T) {
	names := FeatureNames()
	require.Len(t, names, FeatureCount)
	require.Equal(t, 47, FeatureCount)

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate feature name %s", n)
		seen[n] = true
	}

	assert.Equal(t, "vessel_distance", names[0])
	assert.Equal(t, "closest_vessel", names[1])
	assert.Equal(t, "neighbor_count", names[2])
	assert.Equal(t, "area", names[5])
	assert.Equal(t, "hema_mean", names[31])
	assert.Equal(t, "eosin_kurt", names[46])

	// Callers get a copy, not the backing array.
	names[0] = "mutated"
	assert.Equal(t, "vessel_distance", FeatureNames()[0])
}

func TestFeatureVectorValuesCoverSchema(t *testing.T) {
	v := &FeatureVector{NeighborCount: 3, ClosestVessel: "Vessel_1"}
	values := v.Values()
	require.Len(t, values, FeatureCount)

	assert.Equal(t, 3.0, values[2], "neighbor_count widens to float64")
	assert.Equal(t, "Vessel_1", values[1])
	assert.Nil(t, v.Value(FeatureCount))
}

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img
}

func squareBoundary(x, y, size float64) []geometry.Point2D {
	return []geometry.Point2D{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
	}
}

// testCollections builds one vessel centered at (100, 50) and three nuclei
// centered at x = 110, 120 and 1100, all on y = 50.
func testCollections() roi.Collections {
	return roi.Collections{
		Vessels: []roi.Region{
			{Name: "Vessel_1", Type: roi.TypeVessel, Boundary: squareBoundary(96, 46, 8)},
		},
		Nuclei: []roi.Region{
			{Name: "Nucleus_1", Type: roi.TypeNucleus, Boundary: squareBoundary(108, 48, 4)},
			{Name: "Nucleus_2", Type: roi.TypeNucleus, Boundary: squareBoundary(118, 48, 4)},
			{Name: "Nucleus_3", Type: roi.TypeNucleus, Boundary: squareBoundary(1098, 48, 4)},
		},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.Default(), nil)
	require.NoError(t, err)
	return e
}

func TestExtractEndToEnd(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	img := whiteImage(1200, 100)
	table, diags, err := e.Extract(context.Background(), "img.png", img, testCollections())
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Len(t, table, 4)
	assert.True(t, e.StainSeparationAvailable())

	n1 := table["img.png_Nucleus_1"]
	require.NotNil(t, n1)
	assert.InDelta(t, 10.0, n1.VesselDistance, 1e-9)
	assert.Equal(t, "Vessel_1", n1.ClosestVessel)
	assert.Equal(t, 1, n1.NeighborCount, "only Nucleus_2 lies within the radius")
	assert.InDelta(t, 10.0, n1.ClosestNeighborDistance, 1e-9)
	assert.Equal(t, "2", n1.ClosestNeighbor)
	assert.Equal(t, 16.0, n1.Area)
	assert.Equal(t, 255.0, n1.Mean)
	assert.Equal(t, 255.0, n1.Hema.Mean, "white pixels are full transmittance")
	assert.Equal(t, 255.0, n1.Eosin.Mean)

	n2 := table["img.png_Nucleus_2"]
	require.NotNil(t, n2)
	assert.InDelta(t, 20.0, n2.VesselDistance, 1e-9)
	assert.Equal(t, "Vessel_1", n2.ClosestVessel)

	// Nucleus_3 is far beyond the bucket ring scan; the exhaustive pass
	// must still resolve its vessel.
	n3 := table["img.png_Nucleus_3"]
	require.NotNil(t, n3)
	assert.InDelta(t, 1000.0, n3.VesselDistance, 1e-9)
	assert.Equal(t, "Vessel_1", n3.ClosestVessel)
	assert.Equal(t, 0, n3.NeighborCount)
	assert.Equal(t, -1.0, n3.ClosestNeighborDistance)
	assert.Equal(t, "N/A", n3.ClosestNeighbor)

	// The lone vessel has no other vessel to reference.
	v1 := table["img.png_Vessel_1"]
	require.NotNil(t, v1)
	assert.Equal(t, -1.0, v1.VesselDistance)
	assert.Equal(t, "N/A", v1.ClosestVessel)
}

func TestExtractIsIdempotent(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	img := whiteImage(1200, 100)
	regions := testCollections()

	first, _, err := e.Extract(context.Background(), "img.png", img, regions)
	require.NoError(t, err)
	computed := e.Computations()
	assert.Equal(t, int64(4), computed)
	assert.Equal(t, 4, e.CachedCount())

	second, _, err := e.Extract(context.Background(), "img.png", img, regions)
	require.NoError(t, err)
	assert.Equal(t, computed, e.Computations(), "second pass must serve from cache")

	for key, v := range first {
		assert.Same(t, v, second[key], "cached vector for %s", key)
	}
}

func TestExtractGrayscaleFallback(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	gray := image.NewGray(image.Rect(0, 0, 1200, 100))
	for i := range gray.Pix {
		gray.Pix[i] = 180
	}

	table, diags, err := e.Extract(context.Background(), "gray.png", gray, testCollections())
	require.NoError(t, err)
	require.Empty(t, diags)
	assert.False(t, e.StainSeparationAvailable())

	n1 := table["gray.png_Nucleus_1"]
	require.NotNil(t, n1)
	assert.Equal(t, 16.0, n1.Area, "geometry is still measured")
	assert.Equal(t, 180.0, n1.Mean)
	for i, v := range n1.StainValues() {
		assert.Equal(t, 0.0, v, "stain value %d must stay zero without separation", i)
	}
}

func TestExtractCancelledContext(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.Extract(ctx, "img.png", whiteImage(1200, 100), testCollections())
	assert.Error(t, err)
}

func TestClearCache(t *testing.T) {
	e := newEngine(t)
	defer e.Close()

	_, _, err := e.Extract(context.Background(), "img.png", whiteImage(1200, 100), testCollections())
	require.NoError(t, err)
	require.Equal(t, 4, e.CachedCount())

	e.ClearCache()
	assert.Equal(t, 0, e.CachedCount())
}

func TestNewDefaults(t *testing.T) {
	e, err := New(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, e)
	e.Close()
}

func TestRegionErrorMessage(t *testing.T) {
	err := RegionError{
		Key:    "img_Nucleus_1",
		Region: "Nucleus_1",
		Type:   roi.TypeNucleus,
		Err:    assert.AnError,
	}
	assert.Contains(t, err.Error(), "Nucleus_1")
	assert.Contains(t, err.Error(), "nucleus")
}
