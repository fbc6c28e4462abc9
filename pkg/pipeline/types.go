package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrorSeverity represents the severity level of pipeline errors
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ErrorCategory represents the category of pipeline errors
type ErrorCategory int

const (
	// CategoryProcess covers spawn failures, broken pipes and non-zero exits.
	CategoryProcess ErrorCategory = iota
	// CategoryMetadata is malformed side-channel metadata; fatal to one track only.
	CategoryMetadata
	// CategoryContent is content the engine refuses to play, never retried.
	CategoryContent
	// CategoryInvariant is a programming-invariant violation handled as a no-op.
	CategoryInvariant
	// CategoryVoice is a missing or broken voice session, surfaced to the user.
	CategoryVoice
	CategoryNetwork
	CategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryProcess:
		return "process"
	case CategoryMetadata:
		return "metadata"
	case CategoryContent:
		return "content"
	case CategoryInvariant:
		return "invariant"
	case CategoryVoice:
		return "voice"
	case CategoryNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// CategorizedError is implemented by errors that know their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

// PipelineError represents an error in the audio pipeline with classification
type PipelineError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Timestamp time.Time
	Context   map[string]interface{}
	Retryable bool
}

func (pe *PipelineError) Error() string {
	return pe.Err.Error()
}

func (pe *PipelineError) Unwrap() error {
	return pe.Err
}

// NewPipelineError creates a new classified pipeline error
func NewPipelineError(err error, category ErrorCategory, severity ErrorSeverity) *PipelineError {
	return &PipelineError{
		Err:       err,
		Category:  category,
		Severity:  severity,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
		Retryable: category == CategoryProcess || category == CategoryMetadata || category == CategoryNetwork,
	}
}

// Classify maps an arbitrary error onto the engine's error taxonomy.
// Per-track failures (process, metadata, network) count against the retry
// budget; content, invariant and voice errors never retry.
func Classify(err error) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	var ce CategorizedError
	if errors.As(err, &ce) {
		return NewPipelineError(err, ce.ErrorCategory(), severityFor(ce.ErrorCategory()))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewPipelineError(err, CategoryNetwork, SeverityMedium)
	}

	return NewPipelineError(err, CategoryUnknown, SeverityMedium)
}

func severityFor(category ErrorCategory) ErrorSeverity {
	switch category {
	case CategoryInvariant:
		return SeverityLow
	case CategoryContent, CategoryMetadata:
		return SeverityMedium
	case CategoryVoice:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
