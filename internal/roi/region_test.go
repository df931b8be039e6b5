package roi

import (
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histofeat/pkg/geometry"
)

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "12", InstanceID("Nucleus_12"))
	assert.Equal(t, "12", InstanceID("Cytoplasm_12"))
	assert.Equal(t, "3", InstanceID("Cell_batch2_3"))
	assert.Equal(t, "plain", InstanceID("plain"))
	assert.Equal(t, "unknown", InstanceID(""))
	// Trailing underscore keeps the full name
	assert.Equal(t, "Nucleus_", InstanceID("Nucleus_"))
}

func TestTypeFromName(t *testing.T) {
	assert.Equal(t, TypeNucleus, TypeFromName("Nucleus_1"))
	assert.Equal(t, TypeCytoplasm, TypeFromName("cytoplasm_9"))
	assert.Equal(t, TypeCell, TypeFromName("Cell_4"))
	assert.Equal(t, TypeVessel, TypeFromName("Vessel_2"))
	assert.Equal(t, TypeVessel, TypeFromName("something_else"))
}

func TestTypeJSONRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeVessel, TypeNucleus, TypeCytoplasm, TypeCell} {
		data, err := json.Marshal(typ)
		require.NoError(t, err)

		var back Type
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, typ, back)
	}

	var bad Type
	assert.Error(t, json.Unmarshal([]byte(`"mitochondrion"`), &bad))
}

func TestRegionGeometryFromBoundary(t *testing.T) {
	r := Region{
		Name: "Cell_1",
		Type: TypeCell,
		Boundary: []geometry.Point2D{
			{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20},
		},
	}

	assert.Equal(t, 100.0, r.Area())
	assert.Equal(t, geometry.Point2D{X: 15, Y: 15}, r.Centroid())
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 10, Height: 10}, r.Bounds())
	assert.True(t, r.Contains(15, 15))
	assert.False(t, r.Contains(25, 15))
}

func TestRegionMask(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	r := Region{
		Name:       "Nucleus_1",
		Type:       TypeNucleus,
		Mask:       mask,
		MaskOffset: image.Point{X: 100, Y: 200},
	}

	assert.Equal(t, 4.0, r.Area())
	assert.True(t, r.Contains(101, 201))
	assert.False(t, r.Contains(103, 203))
	assert.False(t, r.Contains(0, 0))
}

func TestCollectionsCount(t *testing.T) {
	c := Collections{
		Vessels: []Region{{Name: "Vessel_1"}},
		Nuclei:  []Region{{Name: "Nucleus_1"}, {Name: "Nucleus_2"}},
	}
	assert.Equal(t, 3, c.Count())

	groups := c.Grouped()
	require.Len(t, groups, 4)
	assert.Equal(t, TypeNucleus, groups[0].Type)
	assert.Equal(t, TypeVessel, groups[3].Type)
}
