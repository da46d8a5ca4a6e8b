// Package preprocess turns a directory of raw images, ground truth labels and
// boundary maps into the persisted superpixel graphs used for training.
//
// The input directory holds three sub directories, raw/, gt/ and boundary/,
// whose files are matched by the number in their names. For every image the
// preprocessor:
//  1. loads the raw image, the ground truth and the boundary map
//  2. derives affinities from the boundary map and scales them for
//     oversegmentation
//  3. computes consecutive superpixels
//  4. builds the region adjacency graph with edge features and costs
//  5. optionally builds the raw + contour two channel stack
//  6. persists graph and pixel data
package preprocess

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rlforseg/internal/models"
	"rlforseg/pkg/config"
	"rlforseg/pkg/rag"
	"rlforseg/pkg/segmentation"
	"rlforseg/pkg/store"
	"rlforseg/pkg/visualization"
)

// Input sub directories
const (
	RawDir      = "raw"
	GTDir       = "gt"
	BoundaryDir = "boundary"
)

// Params holds the run parameters of the preprocessor
type Params struct {
	// InputDir contains the raw/, gt/ and boundary/ image directories
	InputDir string

	// OutputDir is the store root receiving graph_data/ and pix_data/
	OutputDir string

	// NumCores limits how many images are processed concurrently
	NumCores int

	// SaveIntermediaryResults writes PNG renderings of every stage
	SaveIntermediaryResults bool

	// IntermediaryDir is where the renderings go
	IntermediaryDir string
}

// Summary describes one processed image
type Summary struct {
	Image    int
	Width    int
	Height   int
	Nodes    int
	Edges    int
	DiffToGT float64
}

// Preprocessor runs the preprocessing pipeline over an input directory
type Preprocessor struct {
	params *Params
	cfg    *config.Config
	log    *logrus.Logger
	store  *store.Store
	engine *segmentation.Engine

	mu        sync.Mutex
	summaries []Summary
}

// NewPreprocessor creates a preprocessor. A nil logger falls back to the
// standard logrus logger.
func NewPreprocessor(params *Params, cfg *config.Config, log *logrus.Logger) *Preprocessor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Preprocessor{
		params: params,
		cfg:    cfg,
		log:    log,
		store:  store.New(params.OutputDir),
		engine: segmentation.NewEngine(cfg.SegmentationConfig(), log),
	}
}

// Process runs the complete preprocessing pipeline. The first failing image
// cancels the remaining ones.
func (p *Preprocessor) Process(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}

	// Create intermediary directory if needed
	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	// Step 1: Discover and match input images
	p.log.WithField("input", p.params.InputDir).Info("Step 1: Discovering input images")
	jobs, err := p.discover()
	if err != nil {
		return fmt.Errorf("failed to discover images: %w", err)
	}
	p.log.WithField("images", len(jobs)).Info("Matched input images")

	// Step 2: Process images in parallel
	p.log.WithField("cores", p.params.NumCores).Info("Step 2: Processing images")
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(p.params.NumCores, 1))
	for _, j := range jobs {
		j := j
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			summary, err := p.processImage(j)
			if err != nil {
				return fmt.Errorf("image %d: %w", j.number, err)
			}
			p.mu.Lock()
			p.summaries = append(p.summaries, summary)
			p.mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	sort.Slice(p.summaries, func(i, k int) bool {
		return p.summaries[i].Image < p.summaries[k].Image
	})
	p.log.WithField("images", len(p.summaries)).Info("Preprocessing completed")
	return nil
}

// Summaries returns one entry per processed image, ordered by image number
func (p *Preprocessor) Summaries() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Summary, len(p.summaries))
	copy(out, p.summaries)
	return out
}

// job is one matched triple of input files
type job struct {
	number   int
	raw      string
	gt       string
	boundary string
}

// discover matches raw images with their ground truth and boundary maps.
// A raw image without both counterparts is an error.
func (p *Preprocessor) discover() ([]job, error) {
	raws, err := listImages(filepath.Join(p.params.InputDir, RawDir))
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("no images found in %s", filepath.Join(p.params.InputDir, RawDir))
	}
	gts, err := listImages(filepath.Join(p.params.InputDir, GTDir))
	if err != nil {
		return nil, err
	}
	boundaries, err := listImages(filepath.Join(p.params.InputDir, BoundaryDir))
	if err != nil {
		return nil, err
	}

	jobs := make([]job, 0, len(raws))
	for _, n := range sortedNumbers(raws) {
		gt, ok := gts[n]
		if !ok {
			return nil, fmt.Errorf("no ground truth for image %d", n)
		}
		boundary, ok := boundaries[n]
		if !ok {
			return nil, fmt.Errorf("no boundary map for image %d", n)
		}
		jobs = append(jobs, job{number: n, raw: raws[n], gt: gt, boundary: boundary})
	}
	return jobs, nil
}

// processImage runs every step for one image. All buffers are owned by the
// call, so images can run concurrently.
func (p *Preprocessor) processImage(j job) (Summary, error) {
	log := p.log.WithField("image", j.number)

	// Step 1: Load inputs
	raw, gt, boundary, err := loadInputs(j)
	if err != nil {
		return Summary{}, err
	}
	p.saveFloat(j.number, "01_raw", raw)

	// Step 2: Affinities from the boundary map
	segCfg := p.cfg.SegmentationConfig()
	affs := segmentation.NaiveAffinities(boundary, segCfg.Offsets)
	scaled := segmentation.ScaleForOversegmentation(affs, segCfg)

	// Step 3: Superpixels, consecutively relabeled
	sp, err := p.engine.Segment(scaled, boundary)
	if err != nil {
		return Summary{}, fmt.Errorf("segmentation failed: %w", err)
	}
	sp, _ = segmentation.Relabel(sp)
	gt, _ = segmentation.Relabel(gt)
	p.saveLabels(j.number, "02_superpixels", sp)
	p.saveLabels(j.number, "03_ground_truth", gt)

	// Step 4: Region adjacency graph
	graphCfg := p.cfg.GraphConfig()
	_, edges := rag.BuildGraph(sp, graphCfg.Offsets)
	features, err := rag.ExtractFeatures(sp, graphCfg.Offsets, scaled)
	if err != nil {
		return Summary{}, fmt.Errorf("feature extraction failed: %w", err)
	}
	costs := rag.GTEdgeCosts(edges, sp, gt, graphCfg)
	diff := 0.0
	if len(edges) > 0 {
		diff = rag.DiffToGT(features, costs)
	}

	graph := &models.GraphData{
		Edges:        edges,
		EdgeFeatures: features,
		GTEdgeCosts:  costs,
		NodeLabeling: sp,
		Affinities:   scaled,
		Offsets:      graphCfg.Offsets,
		DiffToGT:     diff,
	}
	pix := &models.PixData{Raw: raw, GT: gt}

	// Step 5: Optional two channel representation
	if p.cfg.Auxiliary.Enabled {
		pix.Raw2Channel = p.twoChannel(raw, sp)
		contour := models.NewFloatMap(raw.Width, raw.Height)
		copy(contour.Data, pix.Raw2Channel.Channel(1))
		p.saveFloat(j.number, "04_contours", contour)
	}

	// Step 6: Persist
	if err := p.store.SaveGraph(j.number, graph); err != nil {
		return Summary{}, fmt.Errorf("failed to save graph data: %w", err)
	}
	if err := p.store.SavePix(j.number, pix); err != nil {
		return Summary{}, fmt.Errorf("failed to save pixel data: %w", err)
	}

	summary := Summary{
		Image:    j.number,
		Width:    sp.Width,
		Height:   sp.Height,
		Nodes:    sp.Max() + 1,
		Edges:    len(edges),
		DiffToGT: diff,
	}
	log.WithFields(logrus.Fields{
		"nodes":      summary.Nodes,
		"edges":      summary.Edges,
		"diff_to_gt": summary.DiffToGT,
	}).Info("Processed image")

	return summary, nil
}

// loadInputs reads the three input images and checks their sizes agree
func loadInputs(j job) (*models.FloatMap, *models.LabelMap, *models.FloatMap, error) {
	rawImg, err := loadImage(j.raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load raw image %s: %w", j.raw, err)
	}
	gtImg, err := loadImage(j.gt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load ground truth %s: %w", j.gt, err)
	}
	boundaryImg, err := loadImage(j.boundary)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load boundary map %s: %w", j.boundary, err)
	}

	size := rawImg.Bounds().Size()
	for name, img := range map[string]image.Image{"ground truth": gtImg, "boundary map": boundaryImg} {
		if img.Bounds().Size() != size {
			return nil, nil, nil, fmt.Errorf("%w: %s is %v, raw image is %v",
				segmentation.ErrShapeMismatch, name, img.Bounds().Size(), size)
		}
	}

	return imageToFloat(rawImg), imageToLabels(gtImg), imageToFloat(boundaryImg), nil
}

// twoChannel stacks the normalised raw image and the smoothed superpixel
// contour map. The contours are zero padded before smoothing, so the border
// fades out instead of being mirrored.
func (p *Preprocessor) twoChannel(raw *models.FloatMap, sp *models.LabelMap) *models.AffinityMap {
	norm := models.NewFloatMap(raw.Width, raw.Height)
	copy(norm.Data, raw.Data)
	segmentation.Normalize(norm)

	contour := segmentation.SmoothZeroPadded(visualization.ContourMap(sp),
		p.cfg.Auxiliary.KernelSize, p.cfg.Auxiliary.Sigma)

	stack := models.NewAffinityMap(2, raw.Width, raw.Height)
	copy(stack.Channel(0), norm.Data)
	copy(stack.Channel(1), contour.Data)
	return stack
}

// saveFloat writes a gray rendering of f for one stage
func (p *Preprocessor) saveFloat(n int, stage string, f *models.FloatMap) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	img, err := visualization.NewViewer(f.Width, f.Height).GrayImage(f)
	if err == nil {
		err = p.saveIntermediaryResult(stage, img, n)
	}
	if err != nil {
		p.log.WithError(err).WithField("stage", stage).Warn("Failed to save intermediary result")
	}
}

// saveLabels writes a colour rendering of lm for one stage
func (p *Preprocessor) saveLabels(n int, stage string, lm *models.LabelMap) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	img, err := visualization.NewViewer(lm.Width, lm.Height).LabelImage(lm)
	if err == nil {
		err = p.saveIntermediaryResult(stage, img, n)
	}
	if err != nil {
		p.log.WithError(err).WithField("stage", stage).Warn("Failed to save intermediary result")
	}
}

// saveIntermediaryResult saves one rendering under its stage directory
func (p *Preprocessor) saveIntermediaryResult(stage string, img image.Image, index int) error {
	filename := filepath.Join(p.params.IntermediaryDir, stage, fmt.Sprintf("%03d.png", index))
	return visualization.SaveImage(img, filename)
}
