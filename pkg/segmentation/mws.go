package segmentation

import (
	"fmt"
	"math/rand"
	"sort"

	"rlforseg/internal/models"
)

// pixelEdge is one candidate pixel pair of the mutex watershed
type pixelEdge struct {
	u, v       int
	weight     float64
	attractive bool
}

// MutexWatershed clusters pixels from an affinity stack. The first
// cfg.SeparatingChannels channels are attractive (must-link) affinities,
// the remaining channels are inverted into repulsive (must-not-link)
// weights. Pairs are visited from the strongest weight down: an attractive
// pair merges its clusters unless a mutex separates them, a repulsive pair
// adds a mutex between two different clusters.
//
// Repulsive pairs are subsampled on the cfg.Strides grid, or with matching
// probability when cfg.RandomizeStrides is set (seeded by cfg.Seed so runs
// are reproducible). The returned ids start at 0.
func MutexWatershed(affs *models.AffinityMap, cfg Config) (*models.LabelMap, error) {
	if affs.Channels != len(cfg.Offsets) {
		return nil, fmt.Errorf("%w: %d affinity channels for %d offsets",
			ErrShapeMismatch, affs.Channels, len(cfg.Offsets))
	}
	if cfg.SeparatingChannels < 0 || cfg.SeparatingChannels > affs.Channels {
		return nil, fmt.Errorf("invalid separating channel count %d for %d channels",
			cfg.SeparatingChannels, affs.Channels)
	}
	models.CheckFinite("affinity map", affs.Data)

	edges := mwsEdges(affs, cfg)

	// Strongest first; the stable sort keeps generation order on ties
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].weight > edges[j].weight
	})

	n := affs.Width * affs.Height
	uf := newMutexUnionFind(n)
	mutexID := 0
	for _, e := range edges {
		ru, rv := uf.find(e.u), uf.find(e.v)
		if ru == rv {
			continue
		}
		if e.attractive {
			if !uf.hasMutex(ru, rv) {
				uf.union(ru, rv)
			}
			continue
		}
		uf.addMutex(ru, rv, mutexID)
		mutexID++
	}

	// Ids are handed out from 1 in raster order of first appearance, with 0
	// reserved for unlabeled pixels, and then shifted down by one
	labels := models.NewLabelMap(affs.Width, affs.Height)
	rootLabel := make(map[int]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		label, ok := rootLabel[root]
		if !ok {
			label = len(rootLabel) + 1
			rootLabel[root] = label
		}
		labels.Labels[i] = label - 1
	}

	return labels, nil
}

// mwsEdges enumerates all in-bounds pixel pairs for every offset
func mwsEdges(affs *models.AffinityMap, cfg Config) []pixelEdge {
	w, h := affs.Width, affs.Height
	sy, sx := 1, 1
	if len(cfg.Strides) == 2 {
		sy, sx = max(cfg.Strides[0], 1), max(cfg.Strides[1], 1)
	}
	keepProb := 1 / float64(sy*sx)
	rng := rand.New(rand.NewSource(cfg.Seed))

	edges := make([]pixelEdge, 0, affs.Channels*w*h)
	for c, o := range cfg.Offsets {
		attractive := c < cfg.SeparatingChannels
		ch := affs.Channel(c)
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

				weight := ch[y*w+x]
				if !attractive {
					if cfg.RandomizeStrides {
						if rng.Float64() >= keepProb {
							continue
						}
					} else if y%sy != 0 || x%sx != 0 {
						continue
					}
					weight = 1 - weight
				}

				edges = append(edges, pixelEdge{
					u:          y*w + x,
					v:          ny*w + nx,
					weight:     weight,
					attractive: attractive,
				})
			}
		}
	}
	return edges
}

// mutexUnionFind is a union-find whose roots carry the ids of the mutex
// constraints they take part in. Two clusters are separated when their
// mutex sets intersect.
type mutexUnionFind struct {
	parent  []int
	rank    []int
	mutexes map[int]map[int]struct{}
}

func newMutexUnionFind(n int) *mutexUnionFind {
	uf := &mutexUnionFind{
		parent:  make([]int, n),
		rank:    make([]int, n),
		mutexes: make(map[int]map[int]struct{}),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *mutexUnionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// union merges two roots and their mutex sets
func (uf *mutexUnionFind) union(a, b int) {
	if uf.rank[a] < uf.rank[b] {
		a, b = b, a
	}
	uf.parent[b] = a
	if uf.rank[a] == uf.rank[b] {
		uf.rank[a]++
	}

	mb, ok := uf.mutexes[b]
	if !ok {
		return
	}
	ma, ok := uf.mutexes[a]
	if !ok {
		uf.mutexes[a] = mb
		delete(uf.mutexes, b)
		return
	}
	if len(ma) < len(mb) {
		ma, mb = mb, ma
	}
	for id := range mb {
		ma[id] = struct{}{}
	}
	uf.mutexes[a] = ma
	delete(uf.mutexes, b)
}

func (uf *mutexUnionFind) hasMutex(a, b int) bool {
	ma, mb := uf.mutexes[a], uf.mutexes[b]
	if len(ma) > len(mb) {
		ma, mb = mb, ma
	}
	for id := range ma {
		if _, ok := mb[id]; ok {
			return true
		}
	}
	return false
}

func (uf *mutexUnionFind) addMutex(a, b, id int) {
	for _, r := range [2]int{a, b} {
		m, ok := uf.mutexes[r]
		if !ok {
			m = make(map[int]struct{})
			uf.mutexes[r] = m
		}
		m[id] = struct{}{}
	}
}
