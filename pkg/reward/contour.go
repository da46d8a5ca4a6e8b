package reward

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// FindContours traces the iso-lines of a binary mask at level 0.5 with
// marching squares. mask is row-major with the given width and height.
//
// Points lie halfway between a foreground and a background pixel, with X
// the column and Y the row coordinate. A contour around an object that does
// not touch the image border is closed and repeats its first point at the end.
// Contours that run into the border stay open. Diagonally touching
// foreground pixels are treated as separate (the background is 8-connected).
func FindContours(mask []bool, width, height int) [][]r2.Vec {
	if width < 2 || height < 2 {
		return nil
	}

	// Crossing points are keyed by the pixel edge they sit on:
	// 2*i for the edge between pixel i and its right neighbour,
	// 2*i+1 for the edge between pixel i and the pixel below.
	links := make([][2]int, 2*width*height)
	degree := make([]uint8, 2*width*height)
	link := func(a, b int) {
		links[a][degree[a]] = b
		degree[a]++
		links[b][degree[b]] = a
		degree[b]++
	}

	for r := 0; r+1 < height; r++ {
		for c := 0; c+1 < width; c++ {
			ul := mask[r*width+c]
			ur := mask[r*width+c+1]
			ll := mask[(r+1)*width+c]
			lr := mask[(r+1)*width+c+1]

			top := 2 * (r*width + c)
			bottom := 2 * ((r+1)*width + c)
			left := 2*(r*width+c) + 1
			right := 2*(r*width+c+1) + 1

			var crossed []int
			if ul != ur {
				crossed = append(crossed, top)
			}
			if ur != lr {
				crossed = append(crossed, right)
			}
			if ll != lr {
				crossed = append(crossed, bottom)
			}
			if ul != ll {
				crossed = append(crossed, left)
			}

			switch len(crossed) {
			case 2:
				link(crossed[0], crossed[1])
			case 4:
				// Saddle: cut off each foreground corner on its own
				if ul {
					link(top, left)
					link(right, bottom)
				} else {
					link(top, right)
					link(bottom, left)
				}
			}
		}
	}

	point := func(id int) r2.Vec {
		pixel := id / 2
		y, x := float64(pixel/width), float64(pixel%width)
		if id%2 == 0 {
			return r2.Vec{X: x + 0.5, Y: y}
		}
		return r2.Vec{X: x, Y: y + 0.5}
	}

	visited := make([]bool, len(links))
	walk := func(start int) []int {
		chain := []int{start}
		visited[start] = true
		prev, cur := -1, start
		for {
			next := -1
			for k := uint8(0); k < degree[cur]; k++ {
				cand := links[cur][k]
				if cand != prev && !visited[cand] {
					next = cand
					break
				}
			}
			if next < 0 {
				return chain
			}
			visited[next] = true
			chain = append(chain, next)
			prev, cur = cur, next
		}
	}

	var contours [][]r2.Vec
	toPoints := func(chain []int, closed bool) {
		pts := make([]r2.Vec, 0, len(chain)+1)
		for _, id := range chain {
			pts = append(pts, point(id))
		}
		if closed {
			pts = append(pts, pts[0])
		}
		contours = append(contours, pts)
	}

	// Open chains first so that cycle tracing never starts mid-chain
	for id, d := range degree {
		if d == 1 && !visited[id] {
			toPoints(walk(id), false)
		}
	}
	for id, d := range degree {
		if d == 2 && !visited[id] {
			toPoints(walk(id), true)
		}
	}

	return contours
}
