package rag

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"rlforseg/internal/models"
)

// GTEdgeCosts scores every edge against the ground truth. For an edge (a, b)
// all boundary pixel pairs between a and b are inspected and the fraction
// whose ground truth ids differ is computed. In CostHard mode the cost is 1
// when the fraction exceeds cfg.DisagreementThreshold and 0 otherwise; in
// CostSoft mode the fraction is the cost.
//
// The result is aligned with edges. Edges that reference an id absent from lm
// mean the graph and the label map went out of sync, and GTEdgeCosts panics.
func GTEdgeCosts(edges []models.Edge, lm, gt *models.LabelMap, cfg Config) []float64 {
	if gt.Width != lm.Width || gt.Height != lm.Height {
		panic(fmt.Sprintf("ground truth %dx%d does not match label map %dx%d",
			gt.Height, gt.Width, lm.Height, lm.Width))
	}

	present := make(map[int]struct{})
	for _, id := range lm.Unique() {
		present[id] = struct{}{}
	}
	for _, e := range edges {
		for _, id := range [2]int{e.U, e.V} {
			if _, ok := present[id]; !ok {
				panic(fmt.Sprintf("edge (%d, %d) references id %d absent from the label map", e.U, e.V, id))
			}
		}
	}

	type tally struct{ total, disagree int }
	counts := make(map[models.Edge]*tally, len(edges))
	for _, e := range edges {
		counts[canonical(e.U, e.V)] = &tally{}
	}
	forEachBoundaryPair(lm, cfg.Offsets, func(bp boundaryPair) {
		t, ok := counts[bp.edge]
		if !ok {
			return
		}
		t.total++
		if gt.Labels[bp.p] != gt.Labels[bp.q] {
			t.disagree++
		}
	})

	costs := make([]float64, len(edges))
	for i, e := range edges {
		t := counts[canonical(e.U, e.V)]
		if t.total == 0 {
			continue
		}
		fraction := float64(t.disagree) / float64(t.total)
		switch cfg.CostMode {
		case CostSoft:
			costs[i] = fraction
		default:
			if fraction > cfg.DisagreementThreshold {
				costs[i] = 1
			}
		}
	}
	return costs
}

// DiffToGT sums |features[i, FeatMean] - costs[i]| over all edges, a rough
// measure of how far the raw affinities are from the ground truth costs
func DiffToGT(features *mat.Dense, costs []float64) float64 {
	if features == nil || features.IsEmpty() {
		return 0
	}
	means := mat.Col(nil, FeatMean, features)
	diff := make([]float64, len(means))
	floats.SubTo(diff, means, costs)
	for i := range diff {
		diff[i] = math.Abs(diff[i])
	}
	return floats.Sum(diff)
}
