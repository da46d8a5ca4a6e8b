// Package reward scores predicted segmentations for the segmentation policy.
// Scores are produced per superpixel and can be projected onto graph edges.
package reward

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"rlforseg/internal/models"
)

// Input is one image of a scoring batch
type Input struct {
	// Prediction is the predicted instance segmentation
	Prediction *models.LabelMap

	// Superpixels is the superpixel map the prediction was built on
	Superpixels *models.LabelMap

	// DirectedEdges is the directed edge list of the superpixel graph; only
	// its first half (the canonical orientation) is used
	DirectedEdges []models.Edge

	// CenterRadii holds per superpixel centre of mass and radii. Scorers
	// that look at shape alone ignore it.
	CenterRadii [][]float64
}

// Scorer turns a batch of predictions into rewards. The result concatenates
// the per-image scores in input order.
type Scorer interface {
	Score(batch []Input) []float64
}

// Config holds the shape reward parameters
type Config struct {
	// ExpFactor controls how fast the reward falls with irregularity
	ExpFactor float64

	// UseEdgeScore projects superpixel scores onto edges
	UseEdgeScore bool

	// Baseline is the starting score of every superpixel
	Baseline float64

	// EmptyPenalty is subtracted everywhere when nothing was predicted
	EmptyPenalty float64

	// DegeneratePenalty is subtracted from objects without any contour
	DegeneratePenalty float64

	// Normalize selects exp(-d*ExpFactor), which reaches 1 for a circle,
	// over the shifted form exp(-(d-0.5)*ExpFactor)/exp(ExpFactor). It is on
	// by default, so default rewards differ numerically from the shifted
	// circularity reward (a circle scores 1 instead of 1/e for ExpFactor 2).
	// Set it to false to reproduce the shifted values.
	Normalize bool
}

// DefaultConfig returns the standard circularity reward setup
func DefaultConfig() Config {
	return Config{
		ExpFactor:         2,
		Baseline:          0.5,
		EmptyPenalty:      0.5,
		DegeneratePenalty: 0.5,
		Normalize:         true,
	}
}

// ShapeScorer rewards predicted objects for being round
type ShapeScorer struct {
	cfg Config
	log *logrus.Logger
}

// NewShapeScorer creates a scorer. A nil logger uses the standard logger.
func NewShapeScorer(cfg Config, log *logrus.Logger) *ShapeScorer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ShapeScorer{cfg: cfg, log: log}
}

// ShapeScore converts the mean contour deviation of an object into a reward
// with the shifted exponential exp(-(d-0.5)*f)/exp(f)
func ShapeScore(deviation, expFactor float64) float64 {
	return math.Exp(-(deviation-0.5)*expFactor) / math.Exp(expFactor)
}

// NormalizedShapeScore converts the mean contour deviation into a reward in
// (0, 1] that equals 1 for a perfect circle
func NormalizedShapeScore(deviation, expFactor float64) float64 {
	return math.Exp(-deviation * expFactor)
}

// Score implements Scorer. Each image gets its own score buffer. A NaN or
// infinite score means the contour statistics are broken and Score panics.
func (s *ShapeScorer) Score(batch []Input) []float64 {
	var out []float64
	for i, in := range batch {
		scores := s.scoreImage(i, in)
		models.CheckFinite(fmt.Sprintf("shape scores of image %d", i), scores)
		if s.cfg.UseEdgeScore {
			scores = ProjectToEdges(scores, in.DirectedEdges)
		}
		out = append(out, scores...)
	}
	return out
}

// scoreImage returns one score per superpixel id (0..max)
func (s *ShapeScorer) scoreImage(idx int, in Input) []float64 {
	pred, sp := in.Prediction, in.Superpixels
	if pred.Width != sp.Width || pred.Height != sp.Height {
		panic(fmt.Sprintf("image %d: prediction %dx%d does not match superpixels %dx%d",
			idx, pred.Height, pred.Width, sp.Height, sp.Width))
	}

	scores := make([]float64, sp.Max()+1)
	for i := range scores {
		scores[i] = s.cfg.Baseline
	}

	if pred.Max() <= 0 {
		for i := range scores {
			scores[i] -= s.cfg.EmptyPenalty
		}
		return scores
	}

	degenerate, scored := 0, 0
	for _, obj := range objectsOf(pred, sp) {
		mask, w, h := obj.mask(pred)
		contours := FindContours(mask, w, h)
		if len(contours) == 0 {
			for _, id := range obj.superpixels {
				scores[id] -= s.cfg.DegeneratePenalty
			}
			degenerate++
			continue
		}

		deviation := 0.0
		for _, c := range contours {
			deviation += ContourDeviation(c)
		}
		deviation /= float64(len(contours))

		score := ShapeScore(deviation, s.cfg.ExpFactor)
		if s.cfg.Normalize {
			score = NormalizedShapeScore(deviation, s.cfg.ExpFactor)
		}
		for _, id := range obj.superpixels {
			scores[id] += score
		}
		scored++
	}

	s.log.WithFields(logrus.Fields{
		"image":      idx,
		"objects":    scored,
		"degenerate": degenerate,
	}).Debug("Scored predicted objects")

	return scores
}

// ProjectToEdges scores every edge of the first half of a directed edge list
// with the larger score of its two endpoints
func ProjectToEdges(scores []float64, directed []models.Edge) []float64 {
	half := directed[:len(directed)/2]
	out := make([]float64, len(half))
	for i, e := range half {
		if e.U < 0 || e.U >= len(scores) || e.V < 0 || e.V >= len(scores) {
			panic(fmt.Sprintf("edge (%d, %d) references a superpixel outside 0..%d", e.U, e.V, len(scores)-1))
		}
		out[i] = math.Max(scores[e.U], scores[e.V])
	}
	return out
}
