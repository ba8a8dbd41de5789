package pipeline

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"tox-lab/domain"
	"tox-lab/errors"
	"tox-lab/postprocess"
)

var validate = validator.New()

const (
	DefaultModelPath      = "resources"
	DefaultSequenceLength = 100
	DefaultMaxTextLength  = 5000
)

// Config drives one Classifier. The zero value is not usable; start from
// DefaultConfig and override.
type Config struct {
	// ModelPath points at the artifact directory. The variant is decided by
	// the files actually present there, never by configuration.
	ModelPath string `mapstructure:"model_path" yaml:"model_path" validate:"required"`

	// ConfidenceThreshold is the global flagging threshold, open interval (0,1).
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" validate:"gt=0,lt=1"`

	// CategoryThresholds overrides the global threshold for single categories.
	// Keys must be the six category names.
	CategoryThresholds map[string]float64 `mapstructure:"category_thresholds" yaml:"category_thresholds"`

	// SequenceLength is the token-id row width used when the artifact does
	// not declare its own geometry.
	SequenceLength int `mapstructure:"sequence_length" yaml:"sequence_length" validate:"gt=0"`

	// MaxTextLength caps raw input in runes before normalization; 0 disables
	// the cap.
	MaxTextLength int `mapstructure:"max_text_length" yaml:"max_text_length" validate:"gte=0"`

	PadLeft      bool `mapstructure:"pad_left" yaml:"pad_left"`
	TruncateLeft bool `mapstructure:"truncate_left" yaml:"truncate_left"`

	StripURLs bool `mapstructure:"strip_urls" yaml:"strip_urls"`
	StripHTML bool `mapstructure:"strip_html" yaml:"strip_html"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		ModelPath:           DefaultModelPath,
		ConfidenceThreshold: postprocess.DefaultThreshold,
		SequenceLength:      DefaultSequenceLength,
		MaxTextLength:       DefaultMaxTextLength,
		StripURLs:           true,
		StripHTML:           true,
	}
}

// ConfigFromMap decodes overrides on top of the defaults. Unknown keys are
// rejected, so a typo fails loudly instead of silently keeping a default.
func ConfigFromMap(settings map[string]any) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(settings); err != nil {
		return Config{}, &errors.ConfigurationError{
			Setting: "settings",
			Reason:  "overrides do not fit the configuration shape",
			Err:     err,
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML settings file over the defaults. Unknown keys
// are rejected; an empty file yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &errors.ConfigurationError{
			Setting: "config_file",
			Reason:  fmt.Sprintf("cannot read %s", path),
			Err:     err,
		}
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return Config{}, &errors.ConfigurationError{
			Setting: "config_file",
			Reason:  fmt.Sprintf("%s is not a valid settings file", path),
			Err:     err,
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configKeys maps struct fields back to their configuration keys so
// validation errors name the key the operator actually wrote.
var configKeys = map[string]string{
	"ModelPath":           "model_path",
	"ConfidenceThreshold": "confidence_threshold",
	"CategoryThresholds":  "category_thresholds",
	"SequenceLength":      "sequence_length",
	"MaxTextLength":       "max_text_length",
}

// Validate checks every range eagerly, before any model work happens.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fields validator.ValidationErrors
		if !stderrors.As(err, &fields) || len(fields) == 0 {
			return err
		}
		field := fields[0]
		return &errors.ConfigurationError{
			Setting: configKeys[field.StructField()],
			Reason:  fmt.Sprintf("fails rule %q", field.Tag()),
			Err:     err,
		}
	}
	return c.Thresholds().Validate()
}

// Thresholds converts the flat configuration values into the post-processor
// form. Key validity is checked by Thresholds.Validate.
func (c Config) Thresholds() postprocess.Thresholds {
	th := postprocess.Thresholds{Global: c.ConfidenceThreshold}
	if len(c.CategoryThresholds) > 0 {
		th.PerCategory = lo.MapEntries(c.CategoryThresholds,
			func(name string, value float64) (domain.Category, float64) {
				return domain.Category(name), value
			})
	}
	return th
}
