package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrEmptyLexicon = fmt.Errorf("no lexicon words have been found")
	ErrBatchClosed  = fmt.Errorf("batch worker is not running")
)

// VectorizationError reports that a text could not be turned into a token
// sequence, typically because the artifact's vocabulary is missing or
// unreadable. It is recoverable: the affected call fails, the process lives.
type VectorizationError struct {
	Reason string
	Err    error
}

func NewVectorizationError(reason string, err error) *VectorizationError {
	return &VectorizationError{Reason: reason, Err: err}
}

func (e *VectorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vectorization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("vectorization failed: %s", e.Reason)
}

func (e *VectorizationError) Unwrap() error { return e.Err }

// IsVectorizationError reports whether err wraps a VectorizationError.
func IsVectorizationError(err error) bool {
	var target *VectorizationError
	return stderrors.As(err, &target)
}

// ModelLoadError reports a corrupt or unreadable model artifact. The caller
// is expected to degrade to the fallback variant rather than abort.
type ModelLoadError struct {
	Path string
	Err  error
}

func NewModelLoadError(path string, err error) *ModelLoadError {
	return &ModelLoadError{Path: path, Err: err}
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model load failed for %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// IsModelLoadError reports whether err wraps a ModelLoadError.
func IsModelLoadError(err error) bool {
	var target *ModelLoadError
	return stderrors.As(err, &target)
}

// ConfigurationError reports a setting outside its valid range. It is raised
// eagerly at configuration time, before any model work happens.
type ConfigurationError struct {
	Setting string
	Reason  string
	Err     error
}

func NewConfigurationError(setting, reason string) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %q: %s: %v", e.Setting, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration %q: %s", e.Setting, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return stderrors.As(err, &target)
}
