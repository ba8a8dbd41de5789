package internal

import (
	"fmt"
	"time"

	"tox-lab/pipeline"
)

// Config is the process-level environment of the toxctl binaries. Every
// setting has a default so the CLI works out of the box; a .env file or real
// environment variables override them.
type Config struct {
	ModelPath           string        `env:"MODEL_PATH,default=resources"`
	ConfidenceThreshold float64       `env:"CONFIDENCE_THRESHOLD,default=0.5"`
	SequenceLength      int           `env:"SEQUENCE_LENGTH,default=100"`
	MaxTextLength       int           `env:"MAX_TEXT_LENGTH,default=5000"`
	BatchSize           int           `env:"BATCH_SIZE,default=32"`
	BatchInterval       time.Duration `env:"BATCH_INTERVAL,default=250ms"`
	StatsFilepath       string        `env:"STATS_FILEPATH,default=data/stats"`
	LogLevel            string        `env:"LOG_LEVEL,default=INFO"`
	Debug               bool          `env:"DEBUG"`
	DebugPort           int           `env:"DEBUG_PORT,default=6061"`
	CensorCharacter     string        `env:"CENSOR_CHARACTER,default=*"`
}

// PipelineConfig projects the environment onto the library configuration,
// keeping library defaults for everything the environment does not carry.
func (c Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.ModelPath = c.ModelPath
	cfg.ConfidenceThreshold = c.ConfidenceThreshold
	cfg.SequenceLength = c.SequenceLength
	cfg.MaxTextLength = c.MaxTextLength
	cfg.Debug = c.Debug
	return cfg
}

// CensorRune converts the CENSOR_CHARACTER setting to the single rune the
// lexicon masks with.
func CensorRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
