package features

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"histofeat/internal/config"
	"histofeat/internal/regionstats"
	"histofeat/internal/roi"
	"histofeat/internal/spatial"
	"histofeat/internal/stain"
)

// RegionError records a single region whose features could not be
// computed. The batch as a whole never aborts for region-level failures;
// callers that care inspect the diagnostics list.
type RegionError struct {
	Key    string
	Region string
	Type   roi.Type
	Err    error
}

func (e RegionError) Error() string {
	return fmt.Sprintf("region %s (%s): %v", e.Region, e.Type, e.Err)
}

// Engine runs feature extraction for whole images: one stain separation
// pass, three spatial indexes, then one cached FeatureVector per region.
// An Engine is safe for concurrent use; its cache is shared across images
// and cleared explicitly.
type Engine struct {
	cfg       *config.Settings
	logger    *slog.Logger
	separator *stain.Separator
	cache     *featureCache

	mu       sync.Mutex
	channels *stain.ChannelSet // most recent image's channel set

	computations atomic.Int64
}

// New creates an engine. A nil cfg uses defaults; a nil logger discards
// nothing and falls back to slog's default.
func New(cfg *config.Settings, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	vectors := stain.DefaultHE()
	if cfg.HasStainOverride() {
		vectors = stain.Vectors{cfg.Stain.Hematoxylin, cfg.Stain.Eosin, {0, 0, 0}}
	}
	separator, err := stain.NewSeparator(vectors, logger)
	if err != nil {
		return nil, fmt.Errorf("build stain separator: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		separator: separator,
		cache:     newFeatureCache(),
	}, nil
}

// indexSet holds the per-image spatial indexes, read-only once built.
type indexSet struct {
	vessel  *spatial.Grid
	nucleus *spatial.Grid
	cell    *spatial.Grid
}

// neighborGrid picks the index queried for same-type neighbor statistics.
// Cytoplasm regions query the nucleus index: a cytoplasm and its nucleus
// are the same biological instance, so nuclei are the natural neighbor
// population for both.
func (s *indexSet) neighborGrid(t roi.Type) *spatial.Grid {
	switch t {
	case roi.TypeNucleus, roi.TypeCytoplasm:
		return s.nucleus
	case roi.TypeCell:
		return s.cell
	default:
		return s.vessel
	}
}

// Extract computes one FeatureVector per region across all four
// collections of an image. Region-level failures are collected as
// diagnostics and the affected regions omitted; only context cancellation
// aborts the batch. Cached entries from an earlier pass over the same
// image are reused without recomputation.
func (e *Engine) Extract(ctx context.Context, imageID string, img image.Image, regions roi.Collections) (map[string]*FeatureVector, []RegionError, error) {
	e.logger.Info("starting feature extraction",
		"image", imageID,
		"vessels", len(regions.Vessels),
		"nuclei", len(regions.Nuclei),
		"cytoplasm", len(regions.Cytoplasms),
		"cells", len(regions.Cells),
	)

	// Phase one: stain separation and index construction. Must complete
	// before any region-level work.
	channels := e.separator.Separate(img)
	e.mu.Lock()
	e.channels = channels
	e.mu.Unlock()

	indexes := e.buildIndexes(regions)

	// Phase two: per-region extraction, parallel across regions.
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		outMu   sync.Mutex
		output  = make(map[string]*FeatureVector, regions.Count())
		diags   []RegionError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, group := range regions.Grouped() {
		for _, region := range group.Regions {
			region := region
			regionType := group.Type
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}

				key := imageID + "_" + region.Name
				vector, ok := e.cache.get(key)
				if !ok {
					var err error
					vector, err = e.extractRegion(region, regionType, img, channels, indexes)
					if err != nil {
						e.logger.Debug("feature extraction failed for region",
							"region", region.Name, "type", regionType.String(), "error", err)
						outMu.Lock()
						diags = append(diags, RegionError{Key: key, Region: region.Name, Type: regionType, Err: err})
						outMu.Unlock()
						return nil
					}
					vector = e.cache.putIfAbsent(key, vector)
				}

				outMu.Lock()
				output[key] = vector
				outMu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		// Cancelled mid-flight: cached entries for finished regions stay
		// valid for a later pass.
		return output, diags, err
	}

	e.logger.Info("feature extraction completed",
		"image", imageID, "regions", len(output), "failed", len(diags))
	return output, diags, nil
}

// buildIndexes constructs the three per-image spatial indexes. The nucleus
// index is also the neighbor population for cytoplasm regions.
func (e *Engine) buildIndexes(regions roi.Collections) *indexSet {
	cell := e.cfg.GridCellSize
	return &indexSet{
		vessel:  spatial.Build(cell, entriesFor(regions.Vessels, roi.TypeVessel)),
		nucleus: spatial.Build(cell, entriesFor(regions.Nuclei, roi.TypeNucleus)),
		cell:    spatial.Build(cell, entriesFor(regions.Cells, roi.TypeCell)),
	}
}

func entriesFor(regions []roi.Region, t roi.Type) []spatial.Entry {
	entries := make([]spatial.Entry, 0, len(regions))
	for _, r := range regions {
		c := r.Centroid()
		entries = append(entries, spatial.Entry{
			ID:   r.Name,
			X:    c.X,
			Y:    c.Y,
			Area: r.Area(),
			Type: t,
		})
	}
	return entries
}

// extractRegion computes one region's full feature vector. Panics from
// malformed upstream geometry are converted into errors so a single bad
// region never takes down the batch.
func (e *Engine) extractRegion(region roi.Region, regionType roi.Type, img image.Image, channels *stain.ChannelSet, indexes *indexSet) (v *FeatureVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("panic measuring region: %v", r)
		}
	}()

	e.computations.Add(1)

	centroid := region.Centroid()
	vector := &FeatureVector{Ignored: region.Ignored}

	// Spatial features
	vesselDist, vesselID := indexes.vessel.NearestReference(centroid.X, centroid.Y, region.Name)
	vector.VesselDistance = vesselDist
	vector.ClosestVessel = identityOrNA(vesselID)

	info := indexes.neighborGrid(regionType).Neighbors(
		centroid.X, centroid.Y, roi.InstanceID(region.Name), e.cfg.NeighborRadius)
	vector.NeighborCount = info.Count
	vector.ClosestNeighborDistance = info.NearestDistance
	vector.ClosestNeighbor = identityOrNA(info.NearestID)

	// Geometry and intensity against the original image
	d := regionstats.Measure(region, img)
	vector.Area = d.Area
	vector.X = d.X
	vector.Y = d.Y
	vector.XM = d.XM
	vector.YM = d.YM
	vector.Perim = d.Perim
	vector.BX = d.BX
	vector.BY = d.BY
	vector.Width = d.Width
	vector.Height = d.Height
	vector.Major = d.Major
	vector.Minor = d.Minor
	vector.Angle = d.Angle
	vector.Circ = d.Circ
	vector.AR = d.AR
	vector.Round = d.Round
	vector.Solidity = d.Solidity
	vector.IntDen = d.IntDen
	vector.Mean = d.Mean
	vector.StdDev = d.StdDev
	vector.Mode = d.Mode
	vector.Min = d.Min
	vector.Max = d.Max
	vector.Median = d.Median
	vector.Skew = d.Skew
	vector.Kurt = d.Kurt

	// Stain channels; fallback separation means the stain blocks stay
	// zero-filled rather than omitted.
	if !channels.Fallback {
		vector.Hema = channelStats(region, channels.Hematoxylin)
		vector.Eosin = channelStats(region, channels.Eosin)
	}

	return vector, nil
}

func channelStats(region roi.Region, channel *image.Gray) ChannelStats {
	d := regionstats.MeasureIntensity(region, channel)
	return ChannelStats{
		Mean:   d.Mean,
		StdDev: d.StdDev,
		Mode:   d.Mode,
		Min:    d.Min,
		Max:    d.Max,
		Median: d.Median,
		Skew:   d.Skew,
		Kurt:   d.Kurt,
	}
}

func identityOrNA(id string) string {
	if id == "" {
		return "N/A"
	}
	return id
}

// HematoxylinImage returns the hematoxylin channel from the most recent
// Extract, for caller-side visualization; nil before the first call.
func (e *Engine) HematoxylinImage() *image.Gray {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channels == nil {
		return nil
	}
	return e.channels.Hematoxylin
}

// EosinImage returns the eosin channel from the most recent Extract; nil
// before the first call.
func (e *Engine) EosinImage() *image.Gray {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channels == nil {
		return nil
	}
	return e.channels.Eosin
}

// StainSeparationAvailable reports whether the most recent image was
// RGB-compatible, i.e. the stain blocks carry real values.
func (e *Engine) StainSeparationAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels != nil && !e.channels.Fallback
}

// ClearCache drops all cached feature vectors, typically between sessions.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// CachedCount returns the number of cached feature vectors.
func (e *Engine) CachedCount() int {
	return e.cache.len()
}

// Computations returns how many region vectors have been computed (cache
// hits excluded). Exposed for idempotence verification.
func (e *Engine) Computations() int64 {
	return e.computations.Load()
}

// Close releases the per-image channel buffers and the cache.
func (e *Engine) Close() {
	e.mu.Lock()
	e.channels = nil
	e.mu.Unlock()
	e.cache.clear()
}
