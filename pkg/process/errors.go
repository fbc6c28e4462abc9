package process

import (
	"errors"
	"fmt"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// Chain errors
var (
	ErrEmptyCommand = errors.New("empty command")
	ErrNoMetadata   = errors.New("decoder exited before emitting metadata")
)

// SpawnError is returned when a stage of the chain cannot be started
type SpawnError struct {
	Stage   string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.Stage, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ErrorCategory implements pipeline.CategorizedError
func (e *SpawnError) ErrorCategory() pipeline.ErrorCategory { return pipeline.CategoryProcess }

// BadMetadataError carries every diagnostic byte the decoder emitted when
// its first line was not valid metadata
type BadMetadataError struct {
	Raw []byte
	Err error
}

func (e *BadMetadataError) Error() string {
	return fmt.Sprintf("bad metadata (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *BadMetadataError) Unwrap() error { return e.Err }

// ErrorCategory implements pipeline.CategorizedError
func (e *BadMetadataError) ErrorCategory() pipeline.ErrorCategory { return pipeline.CategoryMetadata }
