package models

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Offset is a pixel displacement used to pair a pixel with a neighbour.
// Dy runs along rows and Dx along columns, so {1, 0} pairs a pixel with
// the one directly below it.
type Offset struct {
	Dy int `yaml:"dy"`
	Dx int `yaml:"dx"`
}

// DefaultOffsets is the neighbourhood used for the leptin data: direct and
// second-order neighbours along both axes.
var DefaultOffsets = []Offset{{1, 0}, {0, 1}, {2, 0}, {0, 2}}

// LabelMap is a dense 2D map of non-negative integer ids
type LabelMap struct {
	// Width and Height are the spatial dimensions in pixels
	Width  int
	Height int

	// Labels holds one id per pixel in row-major order
	Labels []int
}

// NewLabelMap allocates an all-zero label map
func NewLabelMap(width, height int) *LabelMap {
	return &LabelMap{
		Width:  width,
		Height: height,
		Labels: make([]int, width*height),
	}
}

// At returns the id at row y and column x
func (l *LabelMap) At(y, x int) int {
	return l.Labels[y*l.Width+x]
}

// Max returns the largest id, or -1 for an empty map
func (l *LabelMap) Max() int {
	maxID := -1
	for _, v := range l.Labels {
		if v > maxID {
			maxID = v
		}
	}
	return maxID
}

// Unique returns the sorted set of ids present in the map
func (l *LabelMap) Unique() []int {
	seen := make(map[int]struct{})
	for _, v := range l.Labels {
		seen[v] = struct{}{}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IsContiguous reports whether the ids present are exactly 0..Max()
func (l *LabelMap) IsContiguous() bool {
	ids := l.Unique()
	for i, id := range ids {
		if id != i {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (l *LabelMap) Clone() *LabelMap {
	labels := make([]int, len(l.Labels))
	copy(labels, l.Labels)
	return &LabelMap{Width: l.Width, Height: l.Height, Labels: labels}
}

// Crop extracts the rectangle r (in pixel coordinates, Min inclusive,
// Max exclusive). Ids are copied unchanged.
func (l *LabelMap) Crop(r image.Rectangle) (*LabelMap, error) {
	if err := checkRect(r, l.Width, l.Height); err != nil {
		return nil, err
	}
	out := NewLabelMap(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		copy(out.Labels[y*out.Width:(y+1)*out.Width],
			l.Labels[(r.Min.Y+y)*l.Width+r.Min.X:(r.Min.Y+y)*l.Width+r.Max.X])
	}
	return out, nil
}

// FloatMap is a single-channel dense map such as a raw image or a
// boundary probability map
type FloatMap struct {
	Width  int
	Height int
	Data   []float64
}

// NewFloatMap allocates an all-zero float map
func NewFloatMap(width, height int) *FloatMap {
	return &FloatMap{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
	}
}

// At returns the value at row y and column x
func (f *FloatMap) At(y, x int) float64 {
	return f.Data[y*f.Width+x]
}

// Crop extracts the rectangle r
func (f *FloatMap) Crop(r image.Rectangle) (*FloatMap, error) {
	if err := checkRect(r, f.Width, f.Height); err != nil {
		return nil, err
	}
	out := NewFloatMap(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		copy(out.Data[y*out.Width:(y+1)*out.Width],
			f.Data[(r.Min.Y+y)*f.Width+r.Min.X:(r.Min.Y+y)*f.Width+r.Max.X])
	}
	return out, nil
}

// AffinityMap is a stack of channels, one per offset. Values are the
// probability that a pixel and its offset partner belong to the same object.
type AffinityMap struct {
	Channels int
	Width    int
	Height   int

	// Data holds the channels back to back, each in row-major order
	Data []float64
}

// NewAffinityMap allocates an all-zero affinity stack
func NewAffinityMap(channels, width, height int) *AffinityMap {
	return &AffinityMap{
		Channels: channels,
		Width:    width,
		Height:   height,
		Data:     make([]float64, channels*width*height),
	}
}

// Channel returns the backing slice of channel c (not a copy)
func (a *AffinityMap) Channel(c int) []float64 {
	size := a.Width * a.Height
	return a.Data[c*size : (c+1)*size]
}

// At returns the value of channel c at row y and column x
func (a *AffinityMap) At(c, y, x int) float64 {
	return a.Data[c*a.Width*a.Height+y*a.Width+x]
}

// Clone returns a deep copy
func (a *AffinityMap) Clone() *AffinityMap {
	data := make([]float64, len(a.Data))
	copy(data, a.Data)
	return &AffinityMap{Channels: a.Channels, Width: a.Width, Height: a.Height, Data: data}
}

// Crop extracts the rectangle r from every channel
func (a *AffinityMap) Crop(r image.Rectangle) (*AffinityMap, error) {
	if err := checkRect(r, a.Width, a.Height); err != nil {
		return nil, err
	}
	out := NewAffinityMap(a.Channels, r.Dx(), r.Dy())
	for c := 0; c < a.Channels; c++ {
		src, dst := a.Channel(c), out.Channel(c)
		for y := 0; y < r.Dy(); y++ {
			copy(dst[y*out.Width:(y+1)*out.Width],
				src[(r.Min.Y+y)*a.Width+r.Min.X:(r.Min.Y+y)*a.Width+r.Max.X])
		}
	}
	return out, nil
}

// Scale multiplies the first n channels by factor in place
func (a *AffinityMap) Scale(n int, factor float64) {
	if n > a.Channels {
		n = a.Channels
	}
	for c := 0; c < n; c++ {
		ch := a.Channel(c)
		for i := range ch {
			ch[i] *= factor
		}
	}
}

// CheckFinite panics if any value is NaN or infinite. A malformed map means
// something upstream is broken and there is nothing sensible to recover to.
func CheckFinite(name string, data []float64) {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			panic(fmt.Sprintf("%s: non-finite value %v at index %d", name, v, i))
		}
	}
}

func checkRect(r image.Rectangle, width, height int) error {
	if r.Empty() {
		return fmt.Errorf("empty crop rectangle %v", r)
	}
	if !r.In(image.Rect(0, 0, width, height)) {
		return fmt.Errorf("crop rectangle %v exceeds %dx%d map", r, width, height)
	}
	return nil
}
