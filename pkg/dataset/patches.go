package dataset

import (
	"fmt"
	"image"
)

// Patches splits an image into training patches
type Patches interface {
	// Count returns the number of patches of a width x height image
	Count(width, height int) int

	// Rect returns the pixel rectangle of patch idx
	Rect(width, height, idx int) image.Rectangle
}

// FullImage uses the whole image as its only patch
type FullImage struct{}

// Count implements Patches
func (FullImage) Count(width, height int) int { return 1 }

// Rect implements Patches
func (FullImage) Rect(width, height, idx int) image.Rectangle {
	return image.Rect(0, 0, width, height)
}

// Grid tiles the image with fixed size patches placed every Stride pixels.
// Patches never leave the image; a stride that does not divide the image
// leaves the last rows or columns uncovered.
type Grid struct {
	// Shape is the patch size as (height, width)
	Shape [2]int

	// Stride is the step between patch origins as (rows, columns)
	Stride [2]int
}

// NewGrid validates a patch grid
func NewGrid(shape, stride [2]int) (Grid, error) {
	for i := 0; i < 2; i++ {
		if shape[i] < 1 || stride[i] < 1 {
			return Grid{}, fmt.Errorf("invalid patch grid shape %v stride %v", shape, stride)
		}
	}
	return Grid{Shape: shape, Stride: stride}, nil
}

func (g Grid) perDim(width, height int) (int, int) {
	rows, cols := 0, 0
	if height >= g.Shape[0] {
		rows = (height-g.Shape[0])/g.Stride[0] + 1
	}
	if width >= g.Shape[1] {
		cols = (width-g.Shape[1])/g.Stride[1] + 1
	}
	return rows, cols
}

// Count implements Patches
func (g Grid) Count(width, height int) int {
	rows, cols := g.perDim(width, height)
	return rows * cols
}

// Rect implements Patches. Patches are numbered row by row.
func (g Grid) Rect(width, height, idx int) image.Rectangle {
	_, cols := g.perDim(width, height)
	y := (idx / cols) * g.Stride[0]
	x := (idx % cols) * g.Stride[1]
	return image.Rect(x, y, x+g.Shape[1], y+g.Shape[0])
}
