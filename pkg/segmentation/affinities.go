package segmentation

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"rlforseg/internal/models"
)

// NaiveAffinities derives one affinity channel per offset from a boundary
// probability map. A pixel pair is as likely to belong to the same object as
// the stronger of its two boundary responses allows: a = 1 - max(h(p), h(q)).
// Pairs whose partner falls outside the map get affinity 0.
func NaiveAffinities(boundaries *models.FloatMap, offsets []models.Offset) *models.AffinityMap {
	models.CheckFinite("boundary map", boundaries.Data)

	w, h := boundaries.Width, boundaries.Height
	affs := models.NewAffinityMap(len(offsets), w, h)

	for c, o := range offsets {
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
				b := math.Max(boundaries.Data[y*w+x], boundaries.Data[ny*w+nx])
				ch[y*w+x] = clamp01(1 - b)
			}
		}
	}

	return affs
}

// HeightmapFromAffinities averages the first n channels into a boundary
// map (1 - mean affinity) suitable for watershed flooding
func HeightmapFromAffinities(affs *models.AffinityMap, n int) *models.FloatMap {
	if n <= 0 || n > affs.Channels {
		n = affs.Channels
	}
	out := models.NewFloatMap(affs.Width, affs.Height)
	for c := 0; c < n; c++ {
		ch := affs.Channel(c)
		for i, v := range ch {
			out.Data[i] += v
		}
	}
	for i := range out.Data {
		out.Data[i] = 1 - out.Data[i]/float64(n)
	}
	return out
}

// Normalize rescales f to [0,1] in place (raw -= min; raw /= max).
// A constant map becomes all zeros.
func Normalize(f *models.FloatMap) {
	if len(f.Data) == 0 {
		return
	}
	minV := floats.Min(f.Data)
	span := floats.Max(f.Data) - minV
	for i := range f.Data {
		if span > 0 {
			f.Data[i] = (f.Data[i] - minV) / span
		} else {
			f.Data[i] = 0
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
