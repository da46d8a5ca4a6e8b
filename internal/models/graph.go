package models

import (
	"gonum.org/v1/gonum/mat"
)

// Edge connects two adjacent regions. After canonicalisation U < V.
type Edge struct {
	U int
	V int
}

// GraphData is the per-image training graph produced by preprocessing.
// Edges, EdgeFeatures and GTEdgeCosts share the same ordering.
type GraphData struct {
	// Edges is the sorted list of region pairs
	Edges []Edge

	// EdgeFeatures has one row per edge
	EdgeFeatures *mat.Dense

	// GTEdgeCosts holds one cost in [0,1] per edge
	GTEdgeCosts []float64

	// NodeLabeling is the superpixel map the graph was built from
	NodeLabeling *LabelMap

	// Affinities is the (scaled) affinity stack used for the features
	Affinities *AffinityMap

	// Offsets are the pixel offsets matching the affinity channels
	Offsets []Offset

	// DiffToGT is the sum of |feature[:,0] - cost| over all edges
	DiffToGT float64
}

// PixData is the per-image pixel data stored next to the graph
type PixData struct {
	// Raw is the raw microscopy image
	Raw *FloatMap

	// GT is the ground truth instance labelling
	GT *LabelMap

	// Raw2Channel optionally holds the normalised raw image and the
	// smoothed superpixel contour map as a two channel stack
	Raw2Channel *AffinityMap
}
