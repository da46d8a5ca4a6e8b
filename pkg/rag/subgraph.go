package rag

import (
	"gonum.org/v1/gonum/mat"

	"rlforseg/internal/models"
)

// Subgraph is the part of a graph that survives a crop of its label map
type Subgraph struct {
	Edges    []models.Edge
	Features *mat.Dense
	Costs    []float64
}

// Squeeze keeps the edges whose two endpoints are both keys of mapping and
// renames them through it. Feature rows and costs of the kept edges follow
// in the same order; ids missing from mapping are dropped, never remapped to
// a sentinel. mapping is expected to be monotonic, as the one returned by
// segmentation.Relabel, which keeps the edge list sorted.
func Squeeze(edges []models.Edge, features *mat.Dense, costs []float64, mapping map[int]int) *Subgraph {
	keep := make([]int, 0, len(edges))
	sub := &Subgraph{}
	for i, e := range edges {
		u, okU := mapping[e.U]
		v, okV := mapping[e.V]
		if !okU || !okV {
			continue
		}
		keep = append(keep, i)
		sub.Edges = append(sub.Edges, canonical(u, v))
		if costs != nil {
			sub.Costs = append(sub.Costs, costs[i])
		}
	}
	sortEdgesWith(sub, keep)

	if features == nil || features.IsEmpty() || len(keep) == 0 {
		sub.Features = &mat.Dense{}
		return sub
	}
	_, cols := features.Dims()
	sub.Features = mat.NewDense(len(keep), cols, nil)
	for row, i := range keep {
		sub.Features.SetRow(row, features.RawRowView(i))
	}
	return sub
}

// sortEdgesWith restores lexicographic edge order after renaming, permuting
// the costs and row indices alongside. It is a no-op for monotonic mappings.
func sortEdgesWith(sub *Subgraph, keep []int) {
	sorted := true
	for i := 1; i < len(sub.Edges); i++ {
		a, b := sub.Edges[i-1], sub.Edges[i]
		if a.U > b.U || (a.U == b.U && a.V > b.V) {
			sorted = false
			break
		}
	}
	if sorted {
		return
	}

	order := make([]int, len(sub.Edges))
	for i := range order {
		order[i] = i
	}
	edges := sub.Edges
	sortIndices(order, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})

	newEdges := make([]models.Edge, len(order))
	newKeep := make([]int, len(order))
	var newCosts []float64
	if sub.Costs != nil {
		newCosts = make([]float64, len(order))
	}
	for dst, src := range order {
		newEdges[dst] = edges[src]
		newKeep[dst] = keep[src]
		if newCosts != nil {
			newCosts[dst] = sub.Costs[src]
		}
	}
	sub.Edges = newEdges
	sub.Costs = newCosts
	copy(keep, newKeep)
}
