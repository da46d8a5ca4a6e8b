package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rlforseg/pkg/rag"
	"rlforseg/pkg/segmentation"
)

// TestDefaultConfig verifies the defaults of the leptin setup
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	if len(cfg.Segmentation.Offsets) != 4 {
		t.Errorf("Expected 4 offsets, got %d", len(cfg.Segmentation.Offsets))
	}
	if cfg.Segmentation.SeparatingChannels != 2 {
		t.Errorf("Expected 2 separating channels, got %d", cfg.Segmentation.SeparatingChannels)
	}
	if cfg.Segmentation.OversegFactor != 1.2 {
		t.Errorf("Expected overseg factor 1.2, got %f", cfg.Segmentation.OversegFactor)
	}
	if cfg.Graph.DisagreementThreshold != 0.5 {
		t.Errorf("Expected threshold 0.5, got %f", cfg.Graph.DisagreementThreshold)
	}
	if cfg.Reward.ExpFactor != 2 {
		t.Errorf("Expected exp factor 2, got %f", cfg.Reward.ExpFactor)
	}
}

// TestLoadConfig verifies loading, defaults for missing keys and the
// missing file fallback
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Missing file should fall back to defaults: %v", err)
	}
	if cfg.Segmentation.Method != string(segmentation.MethodWatershed) {
		t.Errorf("Expected default method, got %q", cfg.Segmentation.Method)
	}

	path := filepath.Join(dir, "config.yaml")
	content := `
segmentation:
  method: mutex_watershed
  offsets:
    - {dy: 1, dx: 0}
    - {dy: 0, dx: 1}
    - {dy: 3, dx: 0}
  separatingChannels: 2
  strides: [2, 2]
graph:
  costMode: soft
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	seg := cfg.SegmentationConfig()
	if seg.Method != segmentation.MethodMutexWatershed {
		t.Errorf("Expected mutex watershed, got %q", seg.Method)
	}
	if len(seg.Offsets) != 3 || seg.Offsets[2].Dy != 3 {
		t.Errorf("Unexpected offsets %v", seg.Offsets)
	}
	if seg.OversegFactor != 1.2 {
		t.Errorf("Unset keys should keep their default, got %f", seg.OversegFactor)
	}

	graph := cfg.GraphConfig()
	if graph.CostMode != rag.CostSoft {
		t.Errorf("Expected soft costs, got %q", graph.CostMode)
	}
	if len(graph.Offsets) != 3 {
		t.Error("Graph config should share the segmentation offsets")
	}

	if cfg.RewardConfig().ExpFactor != 2 {
		t.Error("Reward config should keep its defaults")
	}
}

// TestValidate verifies that bad settings are rejected
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no cores", func(c *Config) { c.Processing.NumCores = 0 }},
		{"unknown method", func(c *Config) { c.Segmentation.Method = "slic" }},
		{"no offsets", func(c *Config) { c.Segmentation.Offsets = nil }},
		{"too many separating channels", func(c *Config) { c.Segmentation.SeparatingChannels = 5 }},
		{"zero overseg factor", func(c *Config) { c.Segmentation.OversegFactor = 0 }},
		{"one stride", func(c *Config) { c.Segmentation.Strides = []int{4} }},
		{"zero stride", func(c *Config) { c.Segmentation.Strides = []int{4, 0} }},
		{"threshold above one", func(c *Config) { c.Graph.DisagreementThreshold = 1.5 }},
		{"unknown cost mode", func(c *Config) { c.Graph.CostMode = "fuzzy" }},
		{"negative edge minimum", func(c *Config) { c.Graph.NEdgesMin = -1 }},
		{"bad auxiliary kernel", func(c *Config) {
			c.Auxiliary.Enabled = true
			c.Auxiliary.KernelSize = 4
		}},
		{"bad auxiliary padding", func(c *Config) {
			c.Auxiliary.Enabled = true
			c.Auxiliary.Padding = 1
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

// TestSaveConfig verifies the save and load round trip
func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if cfg.Auxiliary.KernelSize != 5 || cfg.Auxiliary.Padding != 2 {
		t.Errorf("Unexpected auxiliary settings %+v", cfg.Auxiliary)
	}
}

// TestRewardScoreForm verifies the default score form and that the shifted
// form can be selected from YAML
func TestRewardScoreForm(t *testing.T) {
	if !DefaultConfig().RewardConfig().Normalize {
		t.Error("Expected normalized shape scores by default")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("reward:\n  normalize: false\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	rw := cfg.RewardConfig()
	if rw.Normalize {
		t.Error("normalize: false should select the shifted score form")
	}
	if rw.ExpFactor != 2 || rw.Baseline != 0.5 {
		t.Errorf("Other reward defaults should survive, got expFactor %f baseline %f",
			rw.ExpFactor, rw.Baseline)
	}
}
