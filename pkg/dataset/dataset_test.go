package dataset

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"rlforseg/internal/models"
	"rlforseg/pkg/rag"
	"rlforseg/pkg/store"
)

// createStripes creates a label map whose ids are x / stripeWidth
func createStripes(width, height, stripeWidth int) *models.LabelMap {
	lm := models.NewLabelMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			lm.Labels[y*width+x] = x / stripeWidth
		}
	}
	return lm
}

// populateStore writes an 8x8 image with four superpixel stripes and a two
// stripe ground truth as image n
func populateStore(t *testing.T, s *store.Store, n int, withPix bool) {
	t.Helper()

	sp := createStripes(8, 8, 2)
	gt := createStripes(8, 8, 4)
	affs := models.NewAffinityMap(len(models.DefaultOffsets), 8, 8)
	for i := range affs.Data {
		affs.Data[i] = 0.8
	}

	cfg := rag.DefaultConfig()
	_, edges := rag.BuildGraph(sp, cfg.Offsets)
	feats, err := rag.ExtractFeatures(sp, cfg.Offsets, affs)
	if err != nil {
		t.Fatalf("Failed to extract features: %v", err)
	}
	costs := rag.GTEdgeCosts(edges, sp, gt, cfg)

	graph := &models.GraphData{
		Edges:        edges,
		EdgeFeatures: feats,
		GTEdgeCosts:  costs,
		NodeLabeling: sp,
		Affinities:   affs,
		Offsets:      cfg.Offsets,
		DiffToGT:     rag.DiffToGT(feats, costs),
	}
	if err := s.SaveGraph(n, graph); err != nil {
		t.Fatalf("Failed to save graph: %v", err)
	}

	if !withPix {
		return
	}
	raw := models.NewFloatMap(8, 8)
	for i := range raw.Data {
		raw.Data[i] = float64(i) / 64
	}
	if err := s.SavePix(n, &models.PixData{Raw: raw, GT: gt}); err != nil {
		t.Fatalf("Failed to save pix: %v", err)
	}
}

// TestFullImageSample verifies the unpatched sample
func TestFullImageSample(t *testing.T) {
	dir := t.TempDir()
	populateStore(t, store.New(dir), 0, true)

	log, _ := test.NewNullLogger()
	d, err := Open(dir, FullImage{}, 0, log)
	if err != nil {
		t.Fatalf("Failed to open dataset: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Expected 1 sample, got %d", d.Len())
	}

	s, err := d.Get(0)
	if err != nil || s == nil {
		t.Fatalf("Failed to get sample: %v", err)
	}
	if len(s.Edges) != 3 {
		t.Errorf("Expected 3 edges, got %d", len(s.Edges))
	}
	if rows, _ := s.Features.Dims(); rows != len(s.Edges) || len(s.Costs) != len(s.Edges) {
		t.Errorf("Features (%d rows) and costs (%d) not aligned with %d edges", rows, len(s.Costs), len(s.Edges))
	}
	if len(s.DirectedEdges()) != 6 {
		t.Errorf("Expected 6 directed edges, got %d", len(s.DirectedEdges()))
	}
}

// TestGridSamples verifies cropping, relabeling and subgraph extraction
func TestGridSamples(t *testing.T) {
	dir := t.TempDir()
	populateStore(t, store.New(dir), 0, true)

	grid, err := NewGrid([2]int{8, 4}, [2]int{8, 4})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	log, _ := test.NewNullLogger()
	d, err := Open(dir, grid, 0, log)
	if err != nil {
		t.Fatalf("Failed to open dataset: %v", err)
	}
	if d.Len() != 2 {
		t.Fatalf("Expected 2 samples, got %d", d.Len())
	}

	s, err := d.Get(1)
	if err != nil || s == nil {
		t.Fatalf("Failed to get sample: %v", err)
	}

	if s.Superpixels.Width != 4 || s.Superpixels.Height != 8 {
		t.Errorf("Expected a 4x8 patch, got %dx%d", s.Superpixels.Width, s.Superpixels.Height)
	}
	if !s.Superpixels.IsContiguous() || s.Superpixels.Max() != 1 {
		t.Errorf("Expected superpixels relabeled to {0,1}, got %v", s.Superpixels.Unique())
	}
	if s.GT.Max() != 0 {
		t.Errorf("Right half has a single ground truth id, got max %d", s.GT.Max())
	}
	if len(s.Edges) != 1 || s.Edges[0] != (models.Edge{U: 0, V: 1}) {
		t.Fatalf("Expected the single edge (0,1), got %v", s.Edges)
	}
	if s.Costs[0] != 0 {
		t.Errorf("Edge inside one ground truth object should cost 0, got %f", s.Costs[0])
	}
	if s.Raw.At(0, 0) != 4.0/64 {
		t.Errorf("Raw patch starts at the wrong pixel: %f", s.Raw.At(0, 0))
	}
}

// TestTooFewEdges verifies the no usable sample result
func TestTooFewEdges(t *testing.T) {
	dir := t.TempDir()
	populateStore(t, store.New(dir), 0, true)

	log, hook := test.NewNullLogger()
	d, err := Open(dir, FullImage{}, 10, log)
	if err != nil {
		t.Fatalf("Failed to open dataset: %v", err)
	}

	s, err := d.Get(0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s != nil {
		t.Error("Expected no sample below the edge minimum")
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.WarnLevel {
		t.Error("Expected a warning")
	}
}

// TestMissingPixData verifies that missing files are skipped with a warning
func TestMissingPixData(t *testing.T) {
	dir := t.TempDir()
	populateStore(t, store.New(dir), 0, false)

	log, hook := test.NewNullLogger()
	d, err := Open(dir, FullImage{}, 0, log)
	if err != nil {
		t.Fatalf("Failed to open dataset: %v", err)
	}

	s, err := d.Get(0)
	if err != nil || s != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", s, err)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Message != "Could not find pixel data" {
		t.Error("Expected a missing data warning")
	}

	if _, err := d.Get(5); err == nil {
		t.Error("Expected an error for an out of range index")
	}
}

// TestOpenEmpty verifies that an empty root is rejected
func TestOpenEmpty(t *testing.T) {
	if _, err := Open(t.TempDir(), FullImage{}, 0, nil); err == nil {
		t.Error("Expected an error for an empty dataset")
	}
}

// TestGrid verifies patch counting and placement
func TestGrid(t *testing.T) {
	g := Grid{Shape: [2]int{4, 4}, Stride: [2]int{2, 3}}

	// rows: (10-4)/2+1 = 4, cols: (11-4)/3+1 = 3
	if n := g.Count(11, 10); n != 12 {
		t.Errorf("Expected 12 patches, got %d", n)
	}
	r := g.Rect(11, 10, 5)
	if r.Min.X != 6 || r.Min.Y != 2 || r.Dx() != 4 || r.Dy() != 4 {
		t.Errorf("Unexpected patch rectangle %v", r)
	}
	if g.Count(3, 3) != 0 {
		t.Error("Image smaller than the patch should have no patches")
	}
	if _, err := NewGrid([2]int{0, 4}, [2]int{1, 1}); err == nil {
		t.Error("Expected an error for an empty patch shape")
	}
}
