package reward

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"
)

// minContourPoints is the shortest contour that is scored by its shape
const minContourPoints = 4

// ApproximatePolygon simplifies a chain with the Douglas-Peucker algorithm.
// Points within tolerance of the simplified chain are dropped. A tolerance of
// 0 or less keeps every point and returns a copy of the chain. The end points
// are always kept, so a closed chain stays closed.
func ApproximatePolygon(chain []r2.Vec, tolerance float64) []r2.Vec {
	if len(chain) < 3 || tolerance <= 0 {
		out := make([]r2.Vec, len(chain))
		copy(out, chain)
		return out
	}

	keep := make([]bool, len(chain))
	keep[0], keep[len(chain)-1] = true, true

	// Explicit stack of [start, end] ranges instead of recursion
	stack := [][2]int{{0, len(chain) - 1}}
	for len(stack) > 0 {
		span := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		start, end := span[0], span[1]
		if end-start < 2 {
			continue
		}

		farthest, maxDist := -1, -1.0
		for i := start + 1; i < end; i++ {
			d := segmentDistance(chain[i], chain[start], chain[end])
			if d > maxDist {
				farthest, maxDist = i, d
			}
		}
		if maxDist > tolerance {
			keep[farthest] = true
			stack = append(stack, [2]int{start, farthest}, [2]int{farthest, end})
		}
	}

	out := make([]r2.Vec, 0, len(chain))
	for i, k := range keep {
		if k {
			out = append(out, chain[i])
		}
	}
	return out
}

// segmentDistance is the distance from p to the line through a and b, or to
// a itself when a and b coincide
func segmentDistance(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	length := r2.Norm(ab)
	if length == 0 {
		return r2.Norm(r2.Sub(p, a))
	}
	ap := r2.Sub(p, a)
	return math.Abs(ab.X*ap.Y-ab.Y*ap.X) / length
}

// Centroid returns the area centroid of a polygon given by its vertices
// (without the closing repeat). Degenerate polygons of zero area fall back
// to the vertex mean.
func Centroid(vertices []r2.Vec) r2.Vec {
	var area, cx, cy float64
	for i, p := range vertices {
		q := vertices[(i+1)%len(vertices)]
		cross := p.X*q.Y - q.X*p.Y
		area += cross
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	area /= 2
	if math.Abs(area) < 1e-9 {
		var mean r2.Vec
		for _, p := range vertices {
			mean = r2.Add(mean, p)
		}
		return r2.Scale(1/float64(len(vertices)), mean)
	}
	return r2.Vec{X: cx / (6 * area), Y: cy / (6 * area)}
}

// RadialDeviation measures how far a closed contour is from a circle. The
// distances of the polygon vertices to their centroid are shifted so that the
// smallest is 0, divided by the largest when that exceeds 1, and the
// population standard deviation of the result is returned. A circle gives 0.
func RadialDeviation(vertices []r2.Vec) float64 {
	centre := Centroid(vertices)
	dists := make([]float64, len(vertices))
	for i, p := range vertices {
		dists[i] = r2.Norm(r2.Sub(p, centre))
	}

	floats.AddConst(-floats.Min(dists), dists)
	if maxDist := floats.Max(dists); maxDist > 1 {
		floats.Scale(1/maxDist, dists)
	}

	_, variance := stat.PopMeanVariance(dists, nil)
	return math.Sqrt(variance)
}

// ContourDeviation is the contribution of one contour to the irregularity of
// its object: twice the radial deviation of its simplified polygon, or 1 for
// contours that are too short or not closed.
func ContourDeviation(contour []r2.Vec) float64 {
	if len(contour) < minContourPoints {
		return 1
	}
	if contour[0] != contour[len(contour)-1] {
		return 1
	}

	poly := ApproximatePolygon(contour, 0)
	vertices := poly[:len(poly)-1]
	if len(vertices) < 3 {
		return 1
	}
	return 2 * RadialDeviation(vertices)
}
