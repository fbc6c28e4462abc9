package queue

import (
	"errors"
	"fmt"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// ErrHandleExhausted is returned when an incoming crossfade handle is
// assigned while another fade is still in progress
var ErrHandleExhausted = errors.New("crossfade incoming slot already occupied")

// BatchHaltedError is returned when every attempt of the retry budget failed.
// The pending queue keeps whatever was not popped.
type BatchHaltedError struct {
	Attempts int
	LastURI  string
	Err      error
}

func (e *BatchHaltedError) Error() string {
	return fmt.Sprintf("playback stopped after %d failed attempts, last tried %s: %v", e.Attempts, e.LastURI, e.Err)
}

func (e *BatchHaltedError) Unwrap() error { return e.Err }

// ErrorCategory implements pipeline.CategorizedError
func (e *BatchHaltedError) ErrorCategory() pipeline.ErrorCategory { return pipeline.CategoryProcess }

// IsHandleExhausted reports whether err is an incoming-slot violation
func IsHandleExhausted(err error) bool {
	return errors.Is(err, ErrHandleExhausted)
}

// classify tags ErrHandleExhausted as an invariant violation for pipeline.Classify
func classify(err error) error {
	if errors.Is(err, ErrHandleExhausted) {
		return pipeline.NewPipelineError(err, pipeline.CategoryInvariant, pipeline.SeverityLow)
	}
	return err
}
