// Package config provides configuration loading and management for the
// superpixel graph pipeline. It handles loading configuration from YAML files,
// provides default values and derives the per-component parameter structs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"rlforseg/internal/models"
	"rlforseg/pkg/rag"
	"rlforseg/pkg/reward"
	"rlforseg/pkg/segmentation"
)

// ErrInvalid is returned by Validate for nonsensical settings
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many images are preprocessed concurrently
		NumCores int `yaml:"numCores"`

		// SaveIntermediaryResults writes PNG renderings of every stage
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"processing"`

	// Superpixel segmentation parameters
	Segmentation struct {
		// Method is either "watershed" or "mutex_watershed"
		Method string `yaml:"method"`

		// Offsets are the pixel offsets of the affinity channels
		Offsets []models.Offset `yaml:"offsets"`

		// SeparatingChannels is the number of leading attractive channels
		SeparatingChannels int `yaml:"separatingChannels"`

		// OversegFactor divides the attractive channels
		OversegFactor float64 `yaml:"oversegFactor"`

		// Strides subsample the repulsive pairs of the mutex watershed
		Strides []int `yaml:"strides"`

		// RandomizeStrides subsamples repulsive pairs at random instead
		RandomizeStrides bool `yaml:"randomizeStrides"`

		// Seed makes randomized strides reproducible
		Seed int64 `yaml:"seed"`

		// Sigma is the Gaussian smoothing of the watershed height map
		Sigma float64 `yaml:"sigma"`

		// MinSize is the smallest watershed region in pixels
		MinSize int `yaml:"minSize"`
	} `yaml:"segmentation"`

	// Graph construction parameters
	Graph struct {
		// DisagreementThreshold separates merge from split edges
		DisagreementThreshold float64 `yaml:"disagreementThreshold"`

		// CostMode is either "hard" or "soft"
		CostMode string `yaml:"costMode"`

		// NEdgesMin is the smallest usable patch graph
		NEdgesMin int `yaml:"nEdgesMin"`
	} `yaml:"graph"`

	// Shape reward parameters
	Reward struct {
		ExpFactor         float64 `yaml:"expFactor"`
		UseEdgeScore      bool    `yaml:"useEdgeScore"`
		Baseline          float64 `yaml:"baseline"`
		EmptyPenalty      float64 `yaml:"emptyPenalty"`
		DegeneratePenalty float64 `yaml:"degeneratePenalty"`

		// Normalize defaults to true: scores use exp(-d*expFactor), so a circle
		// scores 1. Set it to false for the shifted form
		// exp(-(d-0.5)*expFactor)/exp(expFactor), whose values differ.
		Normalize bool `yaml:"normalize"`
	} `yaml:"reward"`

	// Auxiliary two channel representation (raw + smoothed contours)
	Auxiliary struct {
		// Enabled writes raw_2chnl next to the pixel data
		Enabled bool `yaml:"enabled"`

		// KernelSize and Sigma define the contour smoothing kernel
		KernelSize int     `yaml:"kernelSize"`
		Sigma      float64 `yaml:"sigma"`

		// Padding is the zero border added around the contour map before
		// smoothing; it must be KernelSize/2
		Padding int `yaml:"padding"`
	} `yaml:"auxiliary"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SaveIntermediaryResults = false
	cfg.Processing.Verbose = false

	// Set default segmentation parameters
	seg := segmentation.DefaultConfig()
	cfg.Segmentation.Method = string(seg.Method)
	cfg.Segmentation.Offsets = seg.Offsets
	cfg.Segmentation.SeparatingChannels = seg.SeparatingChannels
	cfg.Segmentation.OversegFactor = seg.OversegFactor
	cfg.Segmentation.Strides = seg.Strides
	cfg.Segmentation.Sigma = seg.Sigma
	cfg.Segmentation.MinSize = seg.MinSize

	// Set default graph parameters
	cfg.Graph.DisagreementThreshold = 0.5
	cfg.Graph.CostMode = string(rag.CostHard)
	cfg.Graph.NEdgesMin = 0

	// Set default reward parameters
	rw := reward.DefaultConfig()
	cfg.Reward.ExpFactor = rw.ExpFactor
	cfg.Reward.Baseline = rw.Baseline
	cfg.Reward.EmptyPenalty = rw.EmptyPenalty
	cfg.Reward.DegeneratePenalty = rw.DegeneratePenalty
	cfg.Reward.Normalize = rw.Normalize

	// Set default auxiliary parameters
	cfg.Auxiliary.Enabled = false
	cfg.Auxiliary.KernelSize = 5
	cfg.Auxiliary.Sigma = 3
	cfg.Auxiliary.Padding = 2

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks the settings that would otherwise fail deep inside the
// pipeline. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	if c.Processing.NumCores < 1 {
		return invalid("numCores must be positive, got %d", c.Processing.NumCores)
	}

	switch segmentation.Method(c.Segmentation.Method) {
	case segmentation.MethodWatershed, segmentation.MethodMutexWatershed:
	default:
		return invalid("unknown segmentation method %q", c.Segmentation.Method)
	}
	if len(c.Segmentation.Offsets) == 0 {
		return invalid("at least one offset is required")
	}
	if c.Segmentation.SeparatingChannels < 0 || c.Segmentation.SeparatingChannels > len(c.Segmentation.Offsets) {
		return invalid("separatingChannels %d outside [0, %d]",
			c.Segmentation.SeparatingChannels, len(c.Segmentation.Offsets))
	}
	if c.Segmentation.OversegFactor <= 0 {
		return invalid("oversegFactor must be positive, got %f", c.Segmentation.OversegFactor)
	}
	if len(c.Segmentation.Strides) != 2 {
		return invalid("strides needs two values, got %v", c.Segmentation.Strides)
	}
	for _, s := range c.Segmentation.Strides {
		if s < 1 {
			return invalid("strides must be positive, got %v", c.Segmentation.Strides)
		}
	}

	if c.Graph.DisagreementThreshold < 0 || c.Graph.DisagreementThreshold > 1 {
		return invalid("disagreementThreshold %f outside [0, 1]", c.Graph.DisagreementThreshold)
	}
	switch rag.CostMode(c.Graph.CostMode) {
	case rag.CostHard, rag.CostSoft:
	default:
		return invalid("unknown cost mode %q", c.Graph.CostMode)
	}
	if c.Graph.NEdgesMin < 0 {
		return invalid("nEdgesMin must not be negative, got %d", c.Graph.NEdgesMin)
	}

	if c.Auxiliary.Enabled {
		if c.Auxiliary.KernelSize < 1 || c.Auxiliary.KernelSize%2 == 0 {
			return invalid("auxiliary kernel size must be odd and positive, got %d", c.Auxiliary.KernelSize)
		}
		// The contour map keeps its size only when the padding matches the kernel
		if c.Auxiliary.Padding != c.Auxiliary.KernelSize/2 {
			return invalid("auxiliary padding %d does not match kernel size %d",
				c.Auxiliary.Padding, c.Auxiliary.KernelSize)
		}
	}

	return nil
}

// SegmentationConfig derives the segmentation engine parameters
func (c *Config) SegmentationConfig() segmentation.Config {
	return segmentation.Config{
		Method:             segmentation.Method(c.Segmentation.Method),
		Offsets:            c.Segmentation.Offsets,
		SeparatingChannels: c.Segmentation.SeparatingChannels,
		OversegFactor:      c.Segmentation.OversegFactor,
		Strides:            c.Segmentation.Strides,
		RandomizeStrides:   c.Segmentation.RandomizeStrides,
		Seed:               c.Segmentation.Seed,
		Sigma:              c.Segmentation.Sigma,
		MinSize:            c.Segmentation.MinSize,
	}
}

// GraphConfig derives the graph construction parameters
func (c *Config) GraphConfig() rag.Config {
	return rag.Config{
		Offsets:               c.Segmentation.Offsets,
		DisagreementThreshold: c.Graph.DisagreementThreshold,
		CostMode:              rag.CostMode(c.Graph.CostMode),
	}
}

// RewardConfig derives the shape reward parameters
func (c *Config) RewardConfig() reward.Config {
	return reward.Config{
		ExpFactor:         c.Reward.ExpFactor,
		UseEdgeScore:      c.Reward.UseEdgeScore,
		Baseline:          c.Reward.Baseline,
		EmptyPenalty:      c.Reward.EmptyPenalty,
		DegeneratePenalty: c.Reward.DegeneratePenalty,
		Normalize:         c.Reward.Normalize,
	}
}
