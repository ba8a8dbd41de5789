package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/postprocess"
)

func TestDefaultConfig(t *testing.T) {
	req := require.New(t)

	cfg := DefaultConfig()
	req.NoError(cfg.Validate())
	req.Equal("resources", cfg.ModelPath)
	req.Equal(postprocess.DefaultThreshold, cfg.ConfidenceThreshold)
	req.Equal(100, cfg.SequenceLength)
	req.Equal(5000, cfg.MaxTextLength)
	req.True(cfg.StripURLs)
	req.True(cfg.StripHTML)
	req.False(cfg.PadLeft)
	req.False(cfg.TruncateLeft)
	req.False(cfg.Debug)
}

func TestConfigFromMap(t *testing.T) {
	t.Run("overrides apply over the defaults", func(t *testing.T) {
		req := require.New(t)

		cfg, err := ConfigFromMap(map[string]any{
			"model_path":           "artifacts/toxicity",
			"confidence_threshold": 0.7,
			"category_thresholds":  map[string]float64{"threat": 0.2},
			"pad_left":             true,
		})
		req.NoError(err)
		req.Equal("artifacts/toxicity", cfg.ModelPath)
		req.Equal(0.7, cfg.ConfidenceThreshold)
		req.Equal(map[string]float64{"threat": 0.2}, cfg.CategoryThresholds)
		req.True(cfg.PadLeft)

		req.Equal(100, cfg.SequenceLength, "untouched keys keep their defaults")
		req.True(cfg.StripURLs)
	})

	t.Run("empty overrides give the defaults", func(t *testing.T) {
		req := require.New(t)

		cfg, err := ConfigFromMap(map[string]any{})
		req.NoError(err)
		req.Equal(DefaultConfig(), cfg)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := ConfigFromMap(map[string]any{"modle_path": "typo"})
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
		req.ErrorContains(err, "modle_path")
	})

	t.Run("mistyped values are rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := ConfigFromMap(map[string]any{"sequence_length": "a hundred"})
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
	})

	t.Run("out of range values are rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := ConfigFromMap(map[string]any{"confidence_threshold": 1.5})
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
		req.ErrorContains(err, "confidence_threshold")
	})
}

func TestLoadConfigFile(t *testing.T) {
	writeFile := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "toxlab.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	t.Run("full settings file", func(t *testing.T) {
		req := require.New(t)

		path := writeFile(t, `
model_path: artifacts/prod
confidence_threshold: 0.65
category_thresholds:
  threat: 0.25
  identity_hate: 0.3
sequence_length: 128
max_text_length: 2000
pad_left: true
strip_html: false
debug: true
`)
		cfg, err := LoadConfigFile(path)
		req.NoError(err)
		req.Equal("artifacts/prod", cfg.ModelPath)
		req.Equal(0.65, cfg.ConfidenceThreshold)
		req.Equal(map[string]float64{"threat": 0.25, "identity_hate": 0.3}, cfg.CategoryThresholds)
		req.Equal(128, cfg.SequenceLength)
		req.Equal(2000, cfg.MaxTextLength)
		req.True(cfg.PadLeft)
		req.False(cfg.StripHTML)
		req.True(cfg.StripURLs, "absent keys keep their defaults")
		req.True(cfg.Debug)
	})

	t.Run("empty file gives the defaults", func(t *testing.T) {
		req := require.New(t)

		cfg, err := LoadConfigFile(writeFile(t, "# nothing overridden\n"))
		req.NoError(err)
		req.Equal(DefaultConfig(), cfg)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := LoadConfigFile(writeFile(t, "modle_path: typo\n"))
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
	})

	t.Run("missing file", func(t *testing.T) {
		req := require.New(t)

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
	})

	t.Run("out of range values are rejected", func(t *testing.T) {
		req := require.New(t)

		_, err := LoadConfigFile(writeFile(t, "confidence_threshold: 1.2\n"))
		req.Error(err)
		req.True(errors.IsConfigurationError(err))
	})
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*Config)
		mentions string
	}{
		{"threshold at lower bound", func(c *Config) { c.ConfidenceThreshold = 0 }, "confidence_threshold"},
		{"threshold at upper bound", func(c *Config) { c.ConfidenceThreshold = 1 }, "confidence_threshold"},
		{"threshold above range", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"empty model path", func(c *Config) { c.ModelPath = "" }, "model_path"},
		{"zero sequence length", func(c *Config) { c.SequenceLength = 0 }, "sequence_length"},
		{"negative max text length", func(c *Config) { c.MaxTextLength = -1 }, "max_text_length"},
		{"unknown category key", func(c *Config) {
			c.CategoryThresholds = map[string]float64{"sarcasm": 0.4}
		}, "sarcasm"},
		{"category value out of range", func(c *Config) {
			c.CategoryThresholds = map[string]float64{"threat": 1.5}
		}, "threat"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)

			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			req.Error(err)
			req.True(errors.IsConfigurationError(err))
			req.ErrorContains(err, tc.mentions)
		})
	}

	t.Run("category overrides for every category are fine", func(t *testing.T) {
		req := require.New(t)

		cfg := DefaultConfig()
		cfg.CategoryThresholds = map[string]float64{}
		for _, c := range domain.Categories() {
			cfg.CategoryThresholds[string(c)] = 0.3
		}
		req.NoError(cfg.Validate())
	})
}

func TestConfigThresholds(t *testing.T) {
	req := require.New(t)

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.6
	cfg.CategoryThresholds = map[string]float64{"threat": 0.2}

	th := cfg.Thresholds()
	req.Equal(0.6, th.Global)
	req.Equal(map[domain.Category]float64{domain.CategoryThreat: 0.2}, th.PerCategory)
	req.Equal(0.2, th.Effective(domain.CategoryThreat))
	req.Equal(0.6, th.Effective(domain.CategoryToxic))

	cfg.CategoryThresholds = nil
	req.Nil(cfg.Thresholds().PerCategory)
}
