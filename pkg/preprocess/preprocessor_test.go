package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"rlforseg/internal/models"
	"rlforseg/pkg/config"
	"rlforseg/pkg/segmentation"
	"rlforseg/pkg/store"
)

// createTestImage creates a 16-bit grayscale image with the specified pattern
func createTestImage(width, height int, pattern func(x, y int) uint16) image.Image {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	return img
}

// writePNG encodes img to path, creating the parent directory
func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

// discID returns the ground truth id of (x, y): two discs on background
func discID(x, y int) uint16 {
	dx1, dy1 := float64(x-7), float64(y-8)
	dx2, dy2 := float64(x-17), float64(y-15)
	switch {
	case math.Hypot(dx1, dy1) <= 5:
		return 1000
	case math.Hypot(dx2, dy2) <= 5:
		return 2000
	}
	return 0
}

// createTestInputs writes raw, ground truth and boundary images for the
// given image numbers
func createTestInputs(t *testing.T, dir string, numbers ...int) {
	t.Helper()
	const size = 24

	for _, n := range numbers {
		name := fmt.Sprintf("slice_%d.png", n)

		raw := createTestImage(size, size, func(x, y int) uint16 {
			if discID(x, y) != 0 {
				return 50000
			}
			return uint16(5000 + 300*((x+y)%5))
		})
		gt := createTestImage(size, size, discID)
		boundary := createTestImage(size, size, func(x, y int) uint16 {
			id := discID(x, y)
			if (x+1 < size && discID(x+1, y) != id) || (y+1 < size && discID(x, y+1) != id) ||
				(x > 0 && discID(x-1, y) != id) || (y > 0 && discID(x, y-1) != id) {
				return 65535
			}
			return 0
		})

		writePNG(t, filepath.Join(dir, RawDir, name), raw)
		writePNG(t, filepath.Join(dir, GTDir, name), gt)
		writePNG(t, filepath.Join(dir, BoundaryDir, name), boundary)
	}
}

// TestExtractNumber verifies filename number extraction
func TestExtractNumber(t *testing.T) {
	tests := []struct {
		filename string
		expected int
	}{
		{"slice_12.png", 12},
		{"/data/raw/img007.jpg", 7},
		{"raw.png", 0},
	}
	for _, tt := range tests {
		if got := extractNumber(tt.filename); got != tt.expected {
			t.Errorf("extractNumber(%q): expected %d, got %d", tt.filename, tt.expected, got)
		}
	}
}

// TestImageToLabels verifies that 16-bit ids survive loading
func TestImageToLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gt.png")
	writePNG(t, path, createTestImage(4, 3, func(x, y int) uint16 {
		return uint16(x * 1000)
	}))

	img, err := loadImage(path)
	if err != nil {
		t.Fatalf("Failed to load image: %v", err)
	}
	lm := imageToLabels(img)
	if lm.Width != 4 || lm.Height != 3 {
		t.Fatalf("Expected 4x3 labels, got %dx%d", lm.Width, lm.Height)
	}
	if lm.At(2, 3) != 3000 {
		t.Errorf("Expected id 3000, got %d", lm.At(2, 3))
	}

	f := imageToFloat(img)
	if f.At(0, 0) != 0 || math.Abs(f.At(0, 1)-1000.0/65535.0) > 1e-12 {
		t.Errorf("Unexpected float conversion: %f, %f", f.At(0, 0), f.At(0, 1))
	}
}

// TestDiscover verifies input matching
func TestDiscover(t *testing.T) {
	log, _ := test.NewNullLogger()

	t.Run("Matched", func(t *testing.T) {
		dir := t.TempDir()
		createTestInputs(t, dir, 3, 1, 2)
		p := NewPreprocessor(&Params{InputDir: dir, OutputDir: t.TempDir()}, config.DefaultConfig(), log)

		jobs, err := p.discover()
		if err != nil {
			t.Fatalf("Discover failed: %v", err)
		}
		if len(jobs) != 3 {
			t.Fatalf("Expected 3 jobs, got %d", len(jobs))
		}
		for i, j := range jobs {
			if j.number != i+1 {
				t.Errorf("Job %d: expected image %d, got %d", i, i+1, j.number)
			}
		}
	})

	t.Run("MissingGroundTruth", func(t *testing.T) {
		dir := t.TempDir()
		createTestInputs(t, dir, 1, 2)
		if err := os.Remove(filepath.Join(dir, GTDir, "slice_2.png")); err != nil {
			t.Fatalf("Failed to remove file: %v", err)
		}
		p := NewPreprocessor(&Params{InputDir: dir, OutputDir: t.TempDir()}, config.DefaultConfig(), log)

		if _, err := p.discover(); err == nil {
			t.Error("Expected an error for a raw image without ground truth")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		dir := t.TempDir()
		for _, sub := range []string{RawDir, GTDir, BoundaryDir} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				t.Fatalf("Failed to create directory: %v", err)
			}
		}
		p := NewPreprocessor(&Params{InputDir: dir, OutputDir: t.TempDir()}, config.DefaultConfig(), log)

		if _, err := p.discover(); err == nil {
			t.Error("Expected an error for an empty input directory")
		}
	})
}

// TestProcess runs the complete pipeline on synthetic images
func TestProcess(t *testing.T) {
	// Skip this test for regular unit testing, as it runs the full pipeline
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	inputDir := t.TempDir()
	outputDir := t.TempDir()
	intermediaryDir := filepath.Join(t.TempDir(), "intermediary")
	createTestInputs(t, inputDir, 1, 2)

	cfg := config.DefaultConfig()
	cfg.Auxiliary.Enabled = true
	params := &Params{
		InputDir:                inputDir,
		OutputDir:               outputDir,
		NumCores:                2,
		SaveIntermediaryResults: true,
		IntermediaryDir:         intermediaryDir,
	}

	log, _ := test.NewNullLogger()
	p := NewPreprocessor(params, cfg, log)
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	summaries := p.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Image != 1 || summaries[1].Image != 2 {
		t.Errorf("Summaries out of order: %d, %d", summaries[0].Image, summaries[1].Image)
	}

	s := store.New(outputDir)
	images, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("Expected 2 stored graphs, got %d", len(images))
	}

	t.Run("Graph", func(t *testing.T) {
		graph, err := s.LoadGraph(1)
		if err != nil {
			t.Fatalf("LoadGraph failed: %v", err)
		}
		if !graph.NodeLabeling.IsContiguous() {
			t.Error("Stored superpixels should be consecutively labeled")
		}
		if graph.NodeLabeling.Max() < 1 || len(graph.Edges) == 0 {
			t.Fatalf("Expected several superpixels with edges, got max id %d and %d edges",
				graph.NodeLabeling.Max(), len(graph.Edges))
		}
		if summaries[0].Nodes != graph.NodeLabeling.Max()+1 || summaries[0].Edges != len(graph.Edges) {
			t.Errorf("Summary %+v does not match stored graph", summaries[0])
		}

		rows, _ := graph.EdgeFeatures.Dims()
		if rows != len(graph.Edges) || len(graph.GTEdgeCosts) != len(graph.Edges) {
			t.Errorf("Expected %d feature rows and costs, got %d and %d",
				len(graph.Edges), rows, len(graph.GTEdgeCosts))
		}
		for i, e := range graph.Edges {
			if e.U >= e.V {
				t.Errorf("Edge %d is not canonical: %v", i, e)
			}
			if c := graph.GTEdgeCosts[i]; c != 0 && c != 1 {
				t.Errorf("Edge %d: hard cost should be 0 or 1, got %f", i, c)
			}
		}
		if graph.Affinities.Channels != len(models.DefaultOffsets) {
			t.Errorf("Expected %d affinity channels, got %d", len(models.DefaultOffsets), graph.Affinities.Channels)
		}
	})

	t.Run("Pixels", func(t *testing.T) {
		pix, err := s.LoadPix(2)
		if err != nil {
			t.Fatalf("LoadPix failed: %v", err)
		}
		if pix.GT.Max() != 2 {
			t.Errorf("Expected ground truth ids 0..2, got max %d", pix.GT.Max())
		}
		if pix.Raw2Channel == nil || pix.Raw2Channel.Channels != 2 {
			t.Fatal("Expected a two channel representation")
		}

		normalized := pix.Raw2Channel.Channel(0)
		maxV, minV := normalized[0], normalized[0]
		for _, v := range normalized {
			maxV = math.Max(maxV, v)
			minV = math.Min(minV, v)
		}
		if math.Abs(maxV-1) > 1e-12 || minV != 0 {
			t.Errorf("Raw channel should span [0,1], got [%f, %f]", minV, maxV)
		}

		contourSum := 0.0
		for _, v := range pix.Raw2Channel.Channel(1) {
			contourSum += v
		}
		if contourSum <= 0 {
			t.Error("Contour channel should not be empty")
		}
	})

	t.Run("Intermediary", func(t *testing.T) {
		for _, stage := range []string{"01_raw", "02_superpixels", "03_ground_truth", "04_contours"} {
			path := filepath.Join(intermediaryDir, stage, "001.png")
			if _, err := os.Stat(path); err != nil {
				t.Errorf("Missing intermediary result %s: %v", path, err)
			}
		}
	})
}

// TestProcessShapeMismatch verifies that inputs of different sizes fail
func TestProcessShapeMismatch(t *testing.T) {
	inputDir := t.TempDir()
	createTestInputs(t, inputDir, 1)
	writePNG(t, filepath.Join(inputDir, BoundaryDir, "slice_1.png"),
		createTestImage(10, 10, func(x, y int) uint16 { return 0 }))

	log, _ := test.NewNullLogger()
	p := NewPreprocessor(&Params{InputDir: inputDir, OutputDir: t.TempDir(), NumCores: 1},
		config.DefaultConfig(), log)

	err := p.Process(context.Background())
	if !errors.Is(err, segmentation.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

// TestProcessCancelled verifies that a cancelled context stops the run
func TestProcessCancelled(t *testing.T) {
	inputDir := t.TempDir()
	createTestInputs(t, inputDir, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log, _ := test.NewNullLogger()
	p := NewPreprocessor(&Params{InputDir: inputDir, OutputDir: t.TempDir(), NumCores: 1},
		config.DefaultConfig(), log)

	if err := p.Process(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
