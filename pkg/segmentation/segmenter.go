// Package segmentation turns boundary and affinity maps into superpixel
// label maps. Two algorithms are available: watershed flooding of a smoothed
// height map and mutex-watershed clustering of an affinity stack.
package segmentation

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"rlforseg/internal/models"
)

// Method selects the segmentation algorithm
type Method string

const (
	// MethodWatershed floods a Gaussian-smoothed height map
	MethodWatershed Method = "watershed"

	// MethodMutexWatershed clusters the affinity stack
	MethodMutexWatershed Method = "mutex_watershed"
)

// ErrShapeMismatch is returned when inputs disagree on their dimensions
var ErrShapeMismatch = errors.New("shape mismatch")

// Config holds the parameters of the segmentation engine
type Config struct {
	// Method selects the algorithm
	Method Method

	// Offsets lists the pixel offset of each affinity channel
	Offsets []models.Offset

	// SeparatingChannels is the number of leading attractive channels
	SeparatingChannels int

	// OversegFactor divides the attractive channels before clustering
	OversegFactor float64

	// Strides subsample the repulsive pairs (rows, columns)
	Strides []int

	// RandomizeStrides replaces the stride grid by random subsampling
	RandomizeStrides bool

	// Seed drives the random stride subsampling
	Seed int64

	// Sigma is the Gaussian smoothing applied before watershed flooding
	Sigma float64

	// MinSize is the smallest region the watershed keeps
	MinSize int
}

// DefaultConfig returns the parameters used for the leptin data
func DefaultConfig() Config {
	offsets := make([]models.Offset, len(models.DefaultOffsets))
	copy(offsets, models.DefaultOffsets)
	return Config{
		Method:             MethodWatershed,
		Offsets:            offsets,
		SeparatingChannels: 2,
		OversegFactor:      1.2,
		Strides:            []int{4, 4},
		Sigma:              0.2,
		MinSize:            4,
	}
}

// Engine runs the configured segmentation and checks its output
type Engine struct {
	cfg Config
	log *logrus.Logger
}

// NewEngine creates an engine. A nil logger falls back to the standard
// logrus logger.
func NewEngine(cfg Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{cfg: cfg, log: log}
}

// ScaleForOversegmentation returns a copy of affs whose separating channels
// are divided by the oversegmentation factor, which biases clustering
// towards more and smaller regions
func ScaleForOversegmentation(affs *models.AffinityMap, cfg Config) *models.AffinityMap {
	scaled := affs.Clone()
	if cfg.OversegFactor > 0 {
		scaled.Scale(cfg.SeparatingChannels, 1/cfg.OversegFactor)
	}
	return scaled
}

// Segment produces a superpixel map. The mutex watershed reads affs, the
// watershed reads heightmap (falling back to a heightmap derived from the
// separating channels of affs when heightmap is nil).
//
// A label set that is not exactly 0..max is logged as a warning: downstream
// graphs stay valid but sparse.
func (e *Engine) Segment(affs *models.AffinityMap, heightmap *models.FloatMap) (*models.LabelMap, error) {
	var labels *models.LabelMap
	var err error

	switch e.cfg.Method {
	case MethodMutexWatershed:
		if affs == nil {
			return nil, fmt.Errorf("mutex watershed needs an affinity map")
		}
		labels, err = MutexWatershed(affs, e.cfg)
		if err != nil {
			return nil, err
		}

	case MethodWatershed, "":
		if heightmap == nil {
			if affs == nil {
				return nil, fmt.Errorf("watershed needs a height map or an affinity map")
			}
			heightmap = HeightmapFromAffinities(affs, e.cfg.SeparatingChannels)
		}
		labels = Watershed(GaussianFilter(heightmap, e.cfg.Sigma), e.cfg.MinSize)

	default:
		return nil, fmt.Errorf("unknown segmentation method %q", e.cfg.Method)
	}

	if !labels.IsContiguous() {
		e.log.WithFields(logrus.Fields{
			"method": e.cfg.Method,
			"max":    labels.Max(),
			"unique": len(labels.Unique()),
		}).Warn("Superpixel ids are not contiguous")
	}

	return labels, nil
}
