package regionstats

import (
	"math"

	"histofeat/pkg/geometry"
)

// feretResult holds the Feret diameter family of measurements.
type feretResult struct {
	Max    float64 // longest point-to-point distance on the boundary
	Angle  float64 // direction of that diameter, degrees in [0, 180)
	Min    float64 // minimum caliper width
	StartX float64 // first endpoint of the max diameter
	StartY float64
}

// feretValues computes the Feret measurements from a region boundary. All
// pairwise distances are evaluated on the convex hull, which carries the
// extreme points of the full boundary. Returns ok=false when the boundary
// has fewer than two points.
func feretValues(boundary []geometry.Point2D) (feretResult, bool) {
	if len(boundary) < 2 {
		return feretResult{}, false
	}

	hull := geometry.ConvexHull(boundary)
	if len(hull) < 2 {
		return feretResult{}, false
	}

	var r feretResult
	var pa, pb geometry.Point2D
	for i := 0; i < len(hull); i++ {
		for j := i + 1; j < len(hull); j++ {
			d := hull[i].Distance(hull[j])
			if d > r.Max {
				r.Max = d
				pa, pb = hull[i], hull[j]
			}
		}
	}

	// Report the upper endpoint first (smaller y, then smaller x), so the
	// starting coordinates are stable regardless of hull orientation.
	if pb.Y < pa.Y || (pb.Y == pa.Y && pb.X < pa.X) {
		pa, pb = pb, pa
	}
	r.StartX = pa.X
	r.StartY = pa.Y

	// Angle with image y pointing down, reported as if y grew upward.
	r.Angle = math.Atan2(-(pb.Y - pa.Y), pb.X-pa.X) * 180 / math.Pi
	for r.Angle < 0 {
		r.Angle += 180
	}
	for r.Angle >= 180 {
		r.Angle -= 180
	}

	r.Min = minCaliperWidth(hull)
	if len(hull) < 3 {
		r.Min = 0
	}
	return r, true
}

// minCaliperWidth computes the minimum width of the hull: for each hull
// edge, the farthest point from the edge's supporting line; the minimum of
// those widths over all edges.
func minCaliperWidth(hull []geometry.Point2D) float64 {
	if len(hull) < 3 {
		return 0
	}

	minWidth := math.MaxFloat64
	n := len(hull)
	for i := 0; i < n; i++ {
		a := hull[i]
		b := hull[(i+1)%n]
		ex := b.X - a.X
		ey := b.Y - a.Y
		length := math.Hypot(ex, ey)
		if length == 0 {
			continue
		}

		var width float64
		for _, p := range hull {
			// Perpendicular distance from p to line ab.
			d := math.Abs(ex*(p.Y-a.Y)-ey*(p.X-a.X)) / length
			if d > width {
				width = d
			}
		}
		if width < minWidth {
			minWidth = width
		}
	}

	if minWidth == math.MaxFloat64 {
		return 0
	}
	return minWidth
}
