// Package pipeline holds the ambient plumbing shared by every stage of the
// playback engine: structured logging, prometheus metrics, error
// classification and the engine configuration.
//
// # Configuration
//
// PipelineConfig is built from DefaultPipelineConfig, overlaid with
// LoadFromEnvironment and checked with Validate before use:
//
//	config := pipeline.DefaultPipelineConfig()
//	config.LoadFromEnvironment()
//	if err := config.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// # Logging
//
// Logger is a small interface over zap. Components derive child loggers with
// With and tag them with Component and GuildID fields.
//
// # Error Handling
//
// Errors are classified into process, metadata, content, invariant and voice
// categories. Process and metadata errors count against the per-batch retry
// budget; content errors are rejected without retry; invariant errors skip the
// offending action; voice errors go straight to the user.
package pipeline
