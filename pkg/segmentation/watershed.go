package segmentation

import (
	"container/heap"

	"rlforseg/internal/models"
)

// neighbours4 lists the face-connected neighbourhood as (dy, dx)
var neighbours4 = [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}

// Watershed floods the height map from its regional minima and returns a
// label map with consecutive ids starting at 0. Regions smaller than minSize
// pixels are dissolved and re-flooded from the surviving regions. The result
// only depends on the input values, so the same map always yields the same
// labels.
func Watershed(height *models.FloatMap, minSize int) *models.LabelMap {
	models.CheckFinite("height map", height.Data)

	seeds := regionalMinima(height)
	labels := flood(height, seeds)

	if minSize > 1 {
		labels = applySizeFilter(height, labels, minSize)
	}

	relabeled, _ := Relabel(labels)
	return relabeled
}

// regionalMinima labels every plateau that has no strictly lower neighbour.
// Seed ids start at 1; 0 marks pixels that still need flooding.
func regionalMinima(height *models.FloatMap) *models.LabelMap {
	w, h := height.Width, height.Height
	seeds := models.NewLabelMap(w, h)
	visited := make([]bool, w*h)
	nextID := 1

	queue := make([]int, 0, 64)
	plateau := make([]int, 0, 64)
	for start := range height.Data {
		if visited[start] {
			continue
		}

		// Collect the connected plateau of equal height
		level := height.Data[start]
		isMinimum := true
		queue = append(queue[:0], start)
		plateau = plateau[:0]
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			plateau = append(plateau, cur)
			cy, cx := cur/w, cur%w
			for _, d := range neighbours4 {
				ny, nx := cy+d[0], cx+d[1]
				if ny < 0 || ny >= h || nx < 0 || nx >= w {
					continue
				}
				nIdx := ny*w + nx
				v := height.Data[nIdx]
				if v < level {
					isMinimum = false
				} else if v == level && !visited[nIdx] {
					visited[nIdx] = true
					queue = append(queue, nIdx)
				}
			}
		}

		if isMinimum {
			for _, idx := range plateau {
				seeds.Labels[idx] = nextID
			}
			nextID++
		}
	}

	return seeds
}

// flood grows the non-zero seeds over the zero pixels in order of height.
// Ties are broken by insertion order.
func flood(height *models.FloatMap, seeds *models.LabelMap) *models.LabelMap {
	w, h := height.Width, height.Height
	labels := seeds.Clone()

	pq := &floodQueue{}
	order := 0
	push := func(idx, label int) {
		heap.Push(pq, floodItem{value: height.Data[idx], order: order, index: idx, label: label})
		order++
	}

	for idx, label := range labels.Labels {
		if label == 0 {
			continue
		}
		y, x := idx/w, idx%w
		for _, d := range neighbours4 {
			ny, nx := y+d[0], x+d[1]
			if ny < 0 || ny >= h || nx < 0 || nx >= w {
				continue
			}
			if labels.Labels[ny*w+nx] == 0 {
				push(ny*w+nx, label)
			}
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(floodItem)
		if labels.Labels[item.index] != 0 {
			continue
		}
		labels.Labels[item.index] = item.label

		y, x := item.index/w, item.index%w
		for _, d := range neighbours4 {
			ny, nx := y+d[0], x+d[1]
			if ny < 0 || ny >= h || nx < 0 || nx >= w {
				continue
			}
			if labels.Labels[ny*w+nx] == 0 {
				push(ny*w+nx, item.label)
			}
		}
	}

	return labels
}

// applySizeFilter removes regions below minSize and refloods the freed
// pixels from the remaining regions. If no region is large enough the
// labelling is returned unchanged.
func applySizeFilter(height *models.FloatMap, labels *models.LabelMap, minSize int) *models.LabelMap {
	sizes := make(map[int]int)
	for _, v := range labels.Labels {
		sizes[v]++
	}

	small := 0
	for _, n := range sizes {
		if n < minSize {
			small++
		}
	}
	if small == 0 || small == len(sizes) {
		return labels
	}

	seeds := labels.Clone()
	for i, v := range seeds.Labels {
		if sizes[v] < minSize {
			seeds.Labels[i] = 0
		}
	}
	return flood(height, seeds)
}

type floodItem struct {
	value float64
	order int
	index int
	label int
}

// floodQueue is a min-heap on (value, order)
type floodQueue []floodItem

func (q floodQueue) Len() int { return len(q) }

func (q floodQueue) Less(i, j int) bool {
	if q[i].value != q[j].value {
		return q[i].value < q[j].value
	}
	return q[i].order < q[j].order
}

func (q floodQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *floodQueue) Push(x any) { *q = append(*q, x.(floodItem)) }

func (q *floodQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
