// Package features orchestrates per-region feature extraction: stain
// separation, spatial indexing and region statistics are combined into one
// fixed-schema feature vector per region, cached per (image, region) key.
package features

// FeatureCount is the number of named entries in the feature schema.
const FeatureCount = 47

// featureNames is the stable, ordered feature schema. The order is a public
// contract consumed by CSV export and downstream classification; it must
// never change between releases.
var featureNames = [FeatureCount]string{
	// Spatial
	"vessel_distance",
	"closest_vessel",
	"neighbor_count",
	"closest_neighbor_distance",
	"closest_neighbor",
	// Basic geometry
	"area",
	"x",
	"y",
	"xm",
	"ym",
	"perim",
	"bx",
	"by",
	"width",
	"height",
	// Shape
	"major",
	"minor",
	"angle",
	"circ",
	"ar",
	"round",
	"solidity",
	// Intensity
	"intden",
	"mean",
	"stddev",
	"mode",
	"min",
	"max",
	"median",
	"skew",
	"kurt",
	// Hematoxylin channel
	"hema_mean",
	"hema_stddev",
	"hema_mode",
	"hema_min",
	"hema_max",
	"hema_median",
	"hema_skew",
	"hema_kurt",
	// Eosin channel
	"eosin_mean",
	"eosin_stddev",
	"eosin_mode",
	"eosin_min",
	"eosin_max",
	"eosin_median",
	"eosin_skew",
	"eosin_kurt",
}

// FeatureNames returns the ordered feature schema as a fresh slice.
func FeatureNames() []string {
	names := make([]string, FeatureCount)
	copy(names[:], featureNames[:])
	return names
}
