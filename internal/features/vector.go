package features

// ChannelStats is the eight-value intensity block computed per stain
// channel.
type ChannelStats struct {
	Mean   float64
	StdDev float64
	Mode   float64
	Min    float64
	Max    float64
	Median float64
	Skew   float64
	Kurt   float64
}

// FeatureVector is the fixed 47-entry feature set for one region. Every
// field is populated at construction; the two identity fields hold "N/A"
// when unresolved and the distance sentinels are -1. The Ignored flag is
// carried alongside the schema, not part of it.
type FeatureVector struct {
	// Spatial
	VesselDistance          float64
	ClosestVessel           string
	NeighborCount           int
	ClosestNeighborDistance float64
	ClosestNeighbor         string

	// Basic geometry
	Area   float64
	X, Y   float64
	XM, YM float64
	Perim  float64
	BX, BY float64
	Width  float64
	Height float64

	// Shape
	Major, Minor, Angle float64
	Circ                float64
	AR, Round, Solidity float64

	// Intensity (original image)
	IntDen             float64
	Mean, StdDev, Mode float64
	Min, Max, Median   float64
	Skew, Kurt         float64

	// Stain channels
	Hema  ChannelStats
	Eosin ChannelStats

	// Ignored mirrors the upstream region flag, unchanged.
	Ignored bool
}

// Value returns the i-th entry in schema order. Identity features are
// strings; everything else is float64 (neighbor_count is widened).
func (v *FeatureVector) Value(i int) any {
	switch i {
	case 0:
		return v.VesselDistance
	case 1:
		return v.ClosestVessel
	case 2:
		return float64(v.NeighborCount)
	case 3:
		return v.ClosestNeighborDistance
	case 4:
		return v.ClosestNeighbor
	case 5:
		return v.Area
	case 6:
		return v.X
	case 7:
		return v.Y
	case 8:
		return v.XM
	case 9:
		return v.YM
	case 10:
		return v.Perim
	case 11:
		return v.BX
	case 12:
		return v.BY
	case 13:
		return v.Width
	case 14:
		return v.Height
	case 15:
		return v.Major
	case 16:
		return v.Minor
	case 17:
		return v.Angle
	case 18:
		return v.Circ
	case 19:
		return v.AR
	case 20:
		return v.Round
	case 21:
		return v.Solidity
	case 22:
		return v.IntDen
	case 23:
		return v.Mean
	case 24:
		return v.StdDev
	case 25:
		return v.Mode
	case 26:
		return v.Min
	case 27:
		return v.Max
	case 28:
		return v.Median
	case 29:
		return v.Skew
	case 30:
		return v.Kurt
	case 31:
		return v.Hema.Mean
	case 32:
		return v.Hema.StdDev
	case 33:
		return v.Hema.Mode
	case 34:
		return v.Hema.Min
	case 35:
		return v.Hema.Max
	case 36:
		return v.Hema.Median
	case 37:
		return v.Hema.Skew
	case 38:
		return v.Hema.Kurt
	case 39:
		return v.Eosin.Mean
	case 40:
		return v.Eosin.StdDev
	case 41:
		return v.Eosin.Mode
	case 42:
		return v.Eosin.Min
	case 43:
		return v.Eosin.Max
	case 44:
		return v.Eosin.Median
	case 45:
		return v.Eosin.Skew
	case 46:
		return v.Eosin.Kurt
	default:
		return nil
	}
}

// Values returns all entries in schema order.
func (v *FeatureVector) Values() []any {
	out := make([]any, FeatureCount)
	for i := 0; i < FeatureCount; i++ {
		out[i] = v.Value(i)
	}
	return out
}

// StainValues reports the 16 stain-channel entries (used by tests and
// diagnostics to verify the fallback zero block).
func (v *FeatureVector) StainValues() []float64 {
	return []float64{
		v.Hema.Mean, v.Hema.StdDev, v.Hema.Mode, v.Hema.Min,
		v.Hema.Max, v.Hema.Median, v.Hema.Skew, v.Hema.Kurt,
		v.Eosin.Mean, v.Eosin.StdDev, v.Eosin.Mode, v.Eosin.Min,
		v.Eosin.Max, v.Eosin.Median, v.Eosin.Skew, v.Eosin.Kurt,
	}
}
