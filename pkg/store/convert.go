package store

import (
	"gonum.org/v1/gonum/mat"

	"rlforseg/internal/models"
)

// Integer arrays are stored as float64 matrices; ids stay well below 2^53.

func labelsToDense(lm *models.LabelMap) *mat.Dense {
	data := make([]float64, len(lm.Labels))
	for i, v := range lm.Labels {
		data[i] = float64(v)
	}
	return mat.NewDense(lm.Height, lm.Width, data)
}

func denseToLabels(m *mat.Dense) *models.LabelMap {
	rows, cols := m.Dims()
	lm := models.NewLabelMap(cols, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			lm.Labels[y*cols+x] = int(m.At(y, x))
		}
	}
	return lm
}

func edgesToDense(edges []models.Edge) *mat.Dense {
	m := mat.NewDense(len(edges), 2, nil)
	for i, e := range edges {
		m.Set(i, 0, float64(e.U))
		m.Set(i, 1, float64(e.V))
	}
	return m
}

func denseToEdges(m *mat.Dense) []models.Edge {
	rows, _ := m.Dims()
	edges := make([]models.Edge, rows)
	for i := range edges {
		edges[i] = models.Edge{U: int(m.At(i, 0)), V: int(m.At(i, 1))}
	}
	return edges
}

// stackToDense lays a channel stack out as one row per channel
func stackToDense(a *models.AffinityMap) *mat.Dense {
	return mat.NewDense(a.Channels, a.Width*a.Height, a.Data)
}

func denseToStack(m *mat.Dense, width, height int) *models.AffinityMap {
	rows, _ := m.Dims()
	a := models.NewAffinityMap(rows, width, height)
	for c := 0; c < rows; c++ {
		copy(a.Channel(c), m.RawRowView(c))
	}
	return a
}
