// Package rag builds region adjacency graphs over superpixel label maps and
// derives the per-edge data used for training: affinity features, ground
// truth costs and the directed edge layout consumed by the reward.
package rag

import (
	"sort"

	"rlforseg/internal/models"
)

// CostMode selects how boundary disagreement is turned into an edge cost
type CostMode string

const (
	// CostHard maps a disagreement fraction above the threshold to 1 and
	// everything else to 0
	CostHard CostMode = "hard"

	// CostSoft uses the disagreement fraction itself as the cost
	CostSoft CostMode = "soft"
)

// Config holds the graph construction parameters
type Config struct {
	// Offsets define which pixel pairs count as adjacent
	Offsets []models.Offset

	// DisagreementThreshold splits merge from split edges in hard mode
	DisagreementThreshold float64

	// CostMode selects hard or soft ground truth costs
	CostMode CostMode
}

// DefaultConfig returns the threshold-0.5 hard cost setup on DefaultOffsets
func DefaultConfig() Config {
	offsets := make([]models.Offset, len(models.DefaultOffsets))
	copy(offsets, models.DefaultOffsets)
	return Config{
		Offsets:               offsets,
		DisagreementThreshold: 0.5,
		CostMode:              CostHard,
	}
}

// boundaryPair is a pixel pair that straddles two different regions
type boundaryPair struct {
	channel int
	p, q    int
	edge    models.Edge
}

// forEachBoundaryPair calls fn for every in-bounds pixel pair (p, p+offset)
// whose labels differ. Pairs are visited channel by channel in raster order.
func forEachBoundaryPair(lm *models.LabelMap, offsets []models.Offset, fn func(boundaryPair)) {
	w, h := lm.Width, lm.Height
	for c, o := range offsets {
		for y := 0; y < h; y++ {
			ny := y + o.Dy
			if ny < 0 || ny >= h {
				continue
			}
			for x := 0; x < w; x++ {
				nx := x + o.Dx
				if nx < 0 || nx >= w {
					continue
				}
				p, q := y*w+x, ny*w+nx
				a, b := lm.Labels[p], lm.Labels[q]
				if a == b {
					continue
				}
				fn(boundaryPair{channel: c, p: p, q: q, edge: canonical(a, b)})
			}
		}
	}
}

func canonical(a, b int) models.Edge {
	if a > b {
		a, b = b, a
	}
	return models.Edge{U: a, V: b}
}

// sortEdges orders edges lexicographically by (U, V)
func sortEdges(edges []models.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
}

// BuildGraph returns the ids present in lm and the deduplicated adjacency
// edges under the given offsets. Every edge has U < V and the list is sorted,
// which is the ordering ExtractFeatures and GTEdgeCosts align with. Regions
// without neighbours stay in nodes with no incident edge.
func BuildGraph(lm *models.LabelMap, offsets []models.Offset) ([]int, []models.Edge) {
	seen := make(map[models.Edge]struct{})
	forEachBoundaryPair(lm, offsets, func(bp boundaryPair) {
		seen[bp.edge] = struct{}{}
	})

	edges := make([]models.Edge, 0, len(seen))
	for e := range seen {
		edges = append(edges, e)
	}
	sortEdges(edges)

	return lm.Unique(), edges
}

// DirectedEdges duplicates edges in both orientations. The first half holds
// the edges as given, the second half the reversed pairs, so index i and
// i+len(edges) describe the same undirected edge.
func DirectedEdges(edges []models.Edge) []models.Edge {
	directed := make([]models.Edge, 2*len(edges))
	copy(directed, edges)
	for i, e := range edges {
		directed[len(edges)+i] = models.Edge{U: e.V, V: e.U}
	}
	return directed
}

// sortIndices sorts idx by the less function over the original positions
func sortIndices(idx []int, less func(i, j int) bool) {
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
}
