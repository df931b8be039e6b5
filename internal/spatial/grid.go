// Package spatial provides a uniform-grid index over region centroids for
// nearest-reference and neighbor-density queries.
package spatial

import (
	"math"

	"histofeat/internal/roi"
)

// DefaultCellSize is the grid bucket size in spatial units, tuned for
// typical region sizes.
const DefaultCellSize = 100.0

// referenceRing is the initial bucket ring scanned by NearestReference
// before falling back to an exhaustive pass.
const referenceRing = 2

// Entry is a lightweight projection of a region inserted into the grid.
type Entry struct {
	ID   string
	X    float64
	Y    float64
	Area float64
	Type roi.Type
}

// Grid buckets entries by (floor(x/cell), floor(y/cell)). A grid is built
// once per image and is read-only afterwards, so it may be shared freely
// across workers.
type Grid struct {
	cellSize float64
	buckets  map[[2]int][]Entry
	entries  []Entry
}

// NewGrid creates an empty grid. Non-positive cell sizes fall back to the
// default.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Grid{
		cellSize: cellSize,
		buckets:  make(map[[2]int][]Entry),
	}
}

// Build creates a grid holding all given entries.
func Build(cellSize float64, entries []Entry) *Grid {
	g := NewGrid(cellSize)
	for _, e := range entries {
		g.Add(e)
	}
	return g
}

// Add inserts an entry into its bucket.
func (g *Grid) Add(e Entry) {
	key := g.bucketKey(e.X, e.Y)
	g.buckets[key] = append(g.buckets[key], e)
	g.entries = append(g.entries, e)
}

// Len returns the number of indexed entries.
func (g *Grid) Len() int {
	return len(g.entries)
}

// Entries returns all indexed entries in insertion order.
func (g *Grid) Entries() []Entry {
	return g.entries
}

func (g *Grid) bucketKey(x, y float64) [2]int {
	return [2]int{
		int(math.Floor(x / g.cellSize)),
		int(math.Floor(y / g.cellSize)),
	}
}

// Nearby returns the union of all entries in the (2*ring+1)² block of
// buckets centered on the query point's bucket. The result is an overscan
// candidate set; exact distance filtering is the caller's job.
func (g *Grid) Nearby(x, y float64, ring int) []Entry {
	center := g.bucketKey(x, y)
	var result []Entry
	for dx := -ring; dx <= ring; dx++ {
		for dy := -ring; dy <= ring; dy++ {
			key := [2]int{center[0] + dx, center[1] + dy}
			result = append(result, g.buckets[key]...)
		}
	}
	return result
}

// NearestReference finds the closest entry to (x, y), excluding the entry
// whose ID equals selfName. It scans a small bucket ring first and falls
// back to every indexed entry when the ring is empty, so a non-empty grid
// never reports "no result". An empty grid (or one holding only the query
// itself) yields the sentinel (-1, "").
//
// Ties between exactly-equal distances keep the first candidate seen;
// bucket iteration order is unspecified, so tie winners may vary across
// runs.
func (g *Grid) NearestReference(x, y float64, selfName string) (float64, string) {
	if len(g.entries) == 0 {
		return -1, ""
	}

	scan := func(candidates []Entry) (float64, string) {
		minDist := math.MaxFloat64
		closest := ""
		for _, e := range candidates {
			if e.ID == selfName {
				continue
			}
			d := math.Hypot(e.X-x, e.Y-y)
			if d < minDist {
				minDist = d
				closest = e.ID
			}
		}
		return minDist, closest
	}

	minDist, closest := scan(g.Nearby(x, y, referenceRing))
	if closest == "" {
		minDist, closest = scan(g.entries)
	}
	if closest == "" {
		return -1, ""
	}
	return minDist, closest
}

// NeighborInfo summarizes the neighborhood of a query point.
type NeighborInfo struct {
	// Count is the number of distinct-instance entries within the radius.
	Count int
	// NearestDistance is the distance to the closest distinct-instance
	// entry, which may lie outside the radius; -1 when there is none.
	NearestDistance float64
	// NearestID is the instance identifier of that closest entry.
	NearestID string
}

// Neighbors counts distinct-instance entries within radius of (x, y) and
// tracks the closest one overall. Entries whose instance ID matches
// selfInstance are excluded, so a nucleus and its own cytoplasm never count
// each other as neighbors. The bucket ring is sized so the true radius-R
// neighborhood is always a subset of the candidate set.
func (g *Grid) Neighbors(x, y float64, selfInstance string, radius float64) NeighborInfo {
	info := NeighborInfo{NearestDistance: -1}
	if len(g.entries) == 0 {
		return info
	}

	ring := int(math.Ceil(radius/g.cellSize)) + 1
	candidates := g.Nearby(x, y, ring)

	minDist := math.MaxFloat64
	closest := ""
	for _, e := range candidates {
		instance := roi.InstanceID(e.ID)
		if instance == selfInstance {
			continue
		}
		d := math.Hypot(e.X-x, e.Y-y)
		if d <= radius {
			info.Count++
		}
		if d < minDist {
			minDist = d
			closest = instance
		}
	}

	if closest != "" {
		info.NearestDistance = minDist
		info.NearestID = closest
	}
	return info
}
