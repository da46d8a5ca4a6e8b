package segmentation

import (
	"sort"

	"rlforseg/internal/models"
)

// Relabel maps the ids of a label map onto consecutive integers starting at
// 0. The smallest id present becomes 0, the next smallest 1, and so on.
//
// The returned mapping goes from old id to new id. The input is not modified.
// Relabeling a map whose ids are already 0..k-1 returns an identical map.
func Relabel(lm *models.LabelMap) (*models.LabelMap, map[int]int) {
	mapping := ConsecutiveMapping(lm.Labels)

	out := &models.LabelMap{
		Width:  lm.Width,
		Height: lm.Height,
		Labels: make([]int, len(lm.Labels)),
	}
	for i, v := range lm.Labels {
		out.Labels[i] = mapping[v]
	}
	return out, mapping
}

// ConsecutiveMapping returns the old->new id map used by Relabel for the
// given ids
func ConsecutiveMapping(ids []int) map[int]int {
	mapping := make(map[int]int)
	for _, v := range ids {
		mapping[v] = 0
	}

	unique := make([]int, 0, len(mapping))
	for v := range mapping {
		unique = append(unique, v)
	}
	sort.Ints(unique)

	for i, v := range unique {
		mapping[v] = i
	}
	return mapping
}
