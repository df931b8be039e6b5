// Package roi defines the region-of-interest data model produced by the
// segmentation stage and consumed by feature extraction.
package roi

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"histofeat/pkg/geometry"
)

// Type identifies which biological structure a region delineates.
type Type int

const (
	TypeVessel Type = iota
	TypeNucleus
	TypeCytoplasm
	TypeCell
)

func (t Type) String() string {
	switch t {
	case TypeVessel:
		return "vessel"
	case TypeNucleus:
		return "nucleus"
	case TypeCytoplasm:
		return "cytoplasm"
	case TypeCell:
		return "cell"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the type as its lowercase name.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the lowercase type names; unknown or empty values
// are an error so malformed ROI files fail loudly at load time.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "vessel":
		*t = TypeVessel
	case "nucleus":
		*t = TypeNucleus
	case "cytoplasm":
		*t = TypeCytoplasm
	case "cell":
		*t = TypeCell
	default:
		return fmt.Errorf("unknown region type %q", s)
	}
	return nil
}

// TypeFromName guesses the region type from a region name prefix
// (e.g. "Nucleus_12" -> TypeNucleus). Used when imported ROI sets carry
// no explicit type field. Unrecognized names default to TypeVessel.
func TypeFromName(name string) Type {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "nucleus"):
		return TypeNucleus
	case strings.HasPrefix(lower, "cytoplasm"):
		return TypeCytoplasm
	case strings.HasPrefix(lower, "cell"):
		return TypeCell
	default:
		return TypeVessel
	}
}

// Region is a delineated structure with a polygon boundary and, optionally,
// a pixel mask. Regions are produced upstream and are read-only here.
type Region struct {
	Name     string              `json:"name"`
	Type     Type                `json:"type"`
	Boundary []geometry.Point2D  `json:"boundary,omitempty"`
	Ignored  bool                `json:"ignored,omitempty"`

	// Optional pixel mask; nonzero mask pixels belong to the region.
	// MaskOffset places the mask's origin in image coordinates.
	Mask       *image.Gray `json:"-"`
	MaskOffset image.Point `json:"-"`
}

// Bounds returns the axis-aligned bounding box of the region.
func (r Region) Bounds() geometry.Rect {
	if len(r.Boundary) > 0 {
		return geometry.BoundingBox(r.Boundary)
	}
	if r.Mask != nil {
		b := r.Mask.Bounds()
		return geometry.Rect{
			X:      float64(r.MaskOffset.X),
			Y:      float64(r.MaskOffset.Y),
			Width:  float64(b.Dx()),
			Height: float64(b.Dy()),
		}
	}
	return geometry.Rect{}
}

// Centroid returns the geometric center of the boundary vertices, or the
// bounding-box center when only a mask is present.
func (r Region) Centroid() geometry.Point2D {
	if len(r.Boundary) > 0 {
		return geometry.Centroid(r.Boundary)
	}
	return r.Bounds().Center()
}

// Area returns the polygon area of the boundary, or the nonzero pixel count
// of the mask when no boundary is present.
func (r Region) Area() float64 {
	if len(r.Boundary) >= 3 {
		return geometry.PolygonArea(r.Boundary)
	}
	if r.Mask != nil {
		count := 0
		b := r.Mask.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if r.Mask.GrayAt(x, y).Y != 0 {
					count++
				}
			}
		}
		return float64(count)
	}
	return 0
}

// Contains reports whether the image coordinate (x, y) belongs to the region.
// The mask wins when present; otherwise the boundary polygon is tested.
func (r Region) Contains(x, y float64) bool {
	if r.Mask != nil {
		px := int(x) - r.MaskOffset.X + r.Mask.Bounds().Min.X
		py := int(y) - r.MaskOffset.Y + r.Mask.Bounds().Min.Y
		if !(image.Point{px, py}).In(r.Mask.Bounds()) {
			return false
		}
		return r.Mask.GrayAt(px, py).Y != 0
	}
	return geometry.PointInPolygon(geometry.Point2D{X: x, Y: y}, r.Boundary)
}

// InstanceID extracts the biological instance identifier from a region name:
// the part after the last underscore. A nucleus "Nucleus_7" and its cytoplasm
// "Cytoplasm_7" share instance "7". Names without an underscore are returned
// unchanged; empty names map to "unknown".
func InstanceID(name string) string {
	if name == "" {
		return "unknown"
	}
	idx := strings.LastIndex(name, "_")
	if idx > 0 && idx < len(name)-1 {
		return name[idx+1:]
	}
	return name
}

// Collections bundles the four per-type region sets handed to the engine.
type Collections struct {
	Vessels    []Region
	Nuclei     []Region
	Cytoplasms []Region
	Cells      []Region
}

// Count returns the total number of regions across all four collections.
func (c Collections) Count() int {
	return len(c.Vessels) + len(c.Nuclei) + len(c.Cytoplasms) + len(c.Cells)
}

// Grouped returns the collections in processing order with their types.
// Nuclei first matches the original pipeline's ordering.
func (c Collections) Grouped() []struct {
	Type    Type
	Regions []Region
} {
	return []struct {
		Type    Type
		Regions []Region
	}{
		{TypeNucleus, c.Nuclei},
		{TypeCytoplasm, c.Cytoplasms},
		{TypeCell, c.Cells},
		{TypeVessel, c.Vessels},
	}
}
