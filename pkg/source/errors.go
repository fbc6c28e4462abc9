package source

import "github.com/latoulicious/TarumaeRadio/pkg/pipeline"

// classified is a sentinel error that knows its pipeline category
type classified struct {
	msg      string
	category pipeline.ErrorCategory
}

func (e *classified) Error() string { return e.msg }

// ErrorCategory implements pipeline.CategorizedError
func (e *classified) ErrorCategory() pipeline.ErrorCategory { return e.category }

// Dispatch errors
var (
	ErrNoExtractor        error = &classified{"no extractor available for this uri", pipeline.CategoryContent}
	ErrUnsupportedContent error = &classified{"unsupported content type", pipeline.CategoryContent}
	ErrEmptyDownload      error = &classified{"downloader produced no files", pipeline.CategoryProcess}
	ErrNotAFile           error = &classified{"path is not a regular file", pipeline.CategoryContent}
)
