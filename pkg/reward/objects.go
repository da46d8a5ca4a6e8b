package reward

import (
	"image"
	"sort"

	"rlforseg/internal/models"
)

// object is one predicted id with its bounding box and the superpixels it
// overlaps
type object struct {
	id          int
	bounds      image.Rectangle
	superpixels []int
}

// objectsOf collects every predicted id, background included, in ascending
// order in a single pass over the maps
func objectsOf(pred, sp *models.LabelMap) []*object {
	byID := make(map[int]*object)
	overlap := make(map[int]map[int]struct{})
	for y := 0; y < pred.Height; y++ {
		for x := 0; x < pred.Width; x++ {
			id := pred.Labels[y*pred.Width+x]
			o, ok := byID[id]
			if !ok {
				o = &object{id: id, bounds: image.Rect(x, y, x+1, y+1)}
				byID[id] = o
				overlap[id] = make(map[int]struct{})
			}
			o.bounds = o.bounds.Union(image.Rect(x, y, x+1, y+1))
			overlap[id][sp.Labels[y*sp.Width+x]] = struct{}{}
		}
	}

	objects := make([]*object, 0, len(byID))
	for id, o := range byID {
		for s := range overlap[id] {
			o.superpixels = append(o.superpixels, s)
		}
		sort.Ints(o.superpixels)
		objects = append(objects, o)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].id < objects[j].id })
	return objects
}

// mask cuts out the object's binary mask with a one pixel margin, clipped to
// the image. Contours do not leave the margin, so tracing the cut-out gives
// the same shapes as tracing the whole image.
func (o *object) mask(pred *models.LabelMap) ([]bool, int, int) {
	r := image.Rect(o.bounds.Min.X-1, o.bounds.Min.Y-1, o.bounds.Max.X+1, o.bounds.Max.Y+1).
		Intersect(image.Rect(0, 0, pred.Width, pred.Height))

	w, h := r.Dx(), r.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask[y*w+x] = pred.Labels[(r.Min.Y+y)*pred.Width+r.Min.X+x] == o.id
		}
	}
	return mask, w, h
}
