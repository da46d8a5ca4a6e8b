package rag

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"rlforseg/internal/models"
)

// ErrNoContributingPixels is returned when an edge has no boundary pixel
// pair to aggregate over
var ErrNoContributingPixels = errors.New("edge has no contributing boundary pixels")

// Column indices of the edge feature matrix
const (
	FeatMean = iota
	FeatVariance
	FeatMin
	FeatQ10
	FeatQ25
	FeatQ50
	FeatQ75
	FeatQ90
	FeatMax
	FeatCount

	// NumFeatures is the width of the feature matrix
	NumFeatures
)

var featureQuantiles = [...]float64{0.10, 0.25, 0.50, 0.75, 0.90}

// ExtractFeatures aggregates the affinities crossing each edge of the graph
// built from lm. For every boundary pixel pair the value of the channel of the
// offset that produced the pair is collected; the row of an edge then holds
// mean, population variance, min, the 10/25/50/75/90 quantiles, max and the
// number of contributing pairs (see the Feat* constants).
//
// Rows follow the order of BuildGraph(lm, offsets). An edge without
// contributing pairs yields ErrNoContributingPixels. A graph without edges
// returns an empty matrix.
func ExtractFeatures(lm *models.LabelMap, offsets []models.Offset, affs *models.AffinityMap) (*mat.Dense, error) {
	if affs.Channels != len(offsets) || affs.Width != lm.Width || affs.Height != lm.Height {
		return nil, fmt.Errorf("affinities %dx%dx%d do not match %d offsets on a %dx%d label map",
			affs.Channels, affs.Height, affs.Width, len(offsets), lm.Height, lm.Width)
	}
	models.CheckFinite("affinity map", affs.Data)

	values := make(map[models.Edge][]float64)
	forEachBoundaryPair(lm, offsets, func(bp boundaryPair) {
		values[bp.edge] = append(values[bp.edge], affs.Channel(bp.channel)[bp.p])
	})

	_, edges := BuildGraph(lm, offsets)
	if len(edges) == 0 {
		return &mat.Dense{}, nil
	}

	feats := mat.NewDense(len(edges), NumFeatures, nil)
	for i, e := range edges {
		v := values[e]
		if len(v) == 0 {
			return nil, fmt.Errorf("edge (%d, %d): %w", e.U, e.V, ErrNoContributingPixels)
		}
		feats.SetRow(i, edgeStatistics(v))
	}
	return feats, nil
}

// edgeStatistics computes one feature row. v is sorted in place.
func edgeStatistics(v []float64) []float64 {
	sort.Float64s(v)

	row := make([]float64, NumFeatures)
	row[FeatMean], row[FeatVariance] = stat.PopMeanVariance(v, nil)
	row[FeatMin] = floats.Min(v)
	for i, p := range featureQuantiles {
		row[FeatQ10+i] = stat.Quantile(p, stat.Empirical, v, nil)
	}
	row[FeatMax] = floats.Max(v)
	row[FeatCount] = float64(len(v))
	return row
}
