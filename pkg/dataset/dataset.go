// Package dataset serves cropped training samples from a preprocessed store.
// Each sample carries the raw patch, its ground truth and superpixels
// relabeled to consecutive ids, and the matching subgraph.
package dataset

import (
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"rlforseg/internal/models"
	"rlforseg/pkg/rag"
	"rlforseg/pkg/segmentation"
	"rlforseg/pkg/store"
)

// Sample is one training patch
type Sample struct {
	// Image and Patch identify where the sample came from
	Image int
	Patch int

	// Bounds is the patch rectangle in image coordinates
	Bounds image.Rectangle

	Raw         *models.FloatMap
	Raw2Channel *models.AffinityMap
	GT          *models.LabelMap
	Superpixels *models.LabelMap

	// Edges, Features and Costs describe the subgraph of the patch
	Edges    []models.Edge
	Features *mat.Dense
	Costs    []float64
}

// DirectedEdges returns the sample's edges in the two-orientation layout
// used by the reward
func (s *Sample) DirectedEdges() []models.Edge {
	return rag.DirectedEdges(s.Edges)
}

// Dataset indexes the patches of all stored images
type Dataset struct {
	store     *store.Store
	patches   Patches
	nEdgesMin int
	log       *logrus.Logger

	images        []int
	width, height int
	perImage      int
}

// Open indexes the graphs under root. All images are assumed to share the
// size of the first one.
func Open(root string, patches Patches, nEdgesMin int, log *logrus.Logger) (*Dataset, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := store.New(root)
	images, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no graphs found under %s", root)
	}

	first, err := s.LoadGraph(images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read first graph: %w", err)
	}
	w, h := first.NodeLabeling.Width, first.NodeLabeling.Height

	d := &Dataset{
		store:     s,
		patches:   patches,
		nEdgesMin: nEdgesMin,
		log:       log,
		images:    images,
		width:     w,
		height:    h,
		perImage:  patches.Count(w, h),
	}

	log.WithFields(logrus.Fields{
		"root":     root,
		"images":   len(images),
		"perImage": d.perImage,
	}).Info("Opened dataset")

	return d, nil
}

// Len returns the number of patches over all images
func (d *Dataset) Len() int {
	return len(d.images) * d.perImage
}

// Get returns sample idx. A sample whose files are missing, or whose
// subgraph has fewer than the minimum number of edges, is not usable: Get
// logs a warning and returns nil without an error so the caller can draw
// another index.
func (d *Dataset) Get(idx int) (*Sample, error) {
	if idx < 0 || idx >= d.Len() {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", idx, d.Len())
	}
	img, patch := d.images[idx/d.perImage], idx%d.perImage
	entry := d.log.WithFields(logrus.Fields{"image": img, "patch": patch})

	graph, err := d.store.LoadGraph(img)
	if errors.Is(err, store.ErrNotFound) {
		entry.WithError(err).Warn("Could not find graph data")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pix, err := d.store.LoadPix(img)
	if errors.Is(err, store.ErrNotFound) {
		entry.WithError(err).Warn("Could not find pixel data")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := d.patches.Rect(d.width, d.height, patch)
	sample, err := cropSample(graph, pix, r)
	if err != nil {
		return nil, fmt.Errorf("image %d patch %d: %w", img, patch, err)
	}
	sample.Image, sample.Patch = img, patch

	if len(sample.Edges) < d.nEdgesMin {
		entry.WithField("edges", len(sample.Edges)).Warn("Too few edges in patch")
		return nil, nil
	}
	return sample, nil
}

// cropSample cuts r out of the stored maps and squeezes the graph onto the
// superpixels that survive the crop
func cropSample(graph *models.GraphData, pix *models.PixData, r image.Rectangle) (*Sample, error) {
	raw, err := pix.Raw.Crop(r)
	if err != nil {
		return nil, err
	}
	gt, err := pix.GT.Crop(r)
	if err != nil {
		return nil, err
	}
	sp, err := graph.NodeLabeling.Crop(r)
	if err != nil {
		return nil, err
	}

	s := &Sample{Bounds: r, Raw: raw}
	if pix.Raw2Channel != nil {
		if s.Raw2Channel, err = pix.Raw2Channel.Crop(r); err != nil {
			return nil, err
		}
	}

	var mapping map[int]int
	s.Superpixels, mapping = segmentation.Relabel(sp)
	s.GT, _ = segmentation.Relabel(gt)

	sub := rag.Squeeze(graph.Edges, graph.EdgeFeatures, graph.GTEdgeCosts, mapping)
	s.Edges, s.Features, s.Costs = sub.Edges, sub.Features, sub.Costs
	return s, nil
}
