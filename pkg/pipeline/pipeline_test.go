package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type categorized struct{ cat ErrorCategory }

func (c categorized) Error() string                { return "categorized" }
func (c categorized) ErrorCategory() ErrorCategory { return c.cat }

func TestPipelineConfiguration(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *PipelineConfig)
		expectError bool
	}{
		{name: "defaults are valid", mutate: func(c *PipelineConfig) {}},
		{name: "threshold above one", mutate: func(c *PipelineConfig) { c.Pipe.Threshold = 1.5 }, expectError: true},
		{name: "zero threshold", mutate: func(c *PipelineConfig) { c.Pipe.Threshold = 0 }, expectError: true},
		{name: "empty decoder", mutate: func(c *PipelineConfig) { c.Decoder.BinaryPath = "" }, expectError: true},
		{name: "zero history", mutate: func(c *PipelineConfig) { c.Playback.HistorySize = 0 }, expectError: true},
		{name: "bad log level", mutate: func(c *PipelineConfig) { c.Logging.Level = "loud" }, expectError: true},
		{name: "bad log format", mutate: func(c *PipelineConfig) { c.Logging.Format = "xml" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultPipelineConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultTunables(t *testing.T) {
	config := DefaultPipelineConfig()

	assert.Equal(t, 0.8, config.Pipe.Threshold)
	assert.Equal(t, 20*time.Second, config.Playback.PreloadLookahead)
	assert.Equal(t, 720*time.Second, config.Session.HeartbeatInterval)
	assert.Equal(t, 10, config.Playback.HistorySize)
	assert.Equal(t, 10*time.Second, config.Playback.CrossfadeDuration)
	assert.Equal(t, 4, config.Playback.RetryBudget)
	assert.Equal(t, 5, config.Playback.RadioRetryBudget)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PIPE_THRESHOLD", "0.5")
	t.Setenv("PRELOAD_LOOKAHEAD", "30s")
	t.Setenv("HEARTBEAT_INTERVAL", "60")
	t.Setenv("HISTORY_SIZE", "3")
	t.Setenv("CACHE_DIR", "/var/cache/tarumae")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PIPELINE_DECODER_ARGS", "--quiet --no-playlist")

	config := DefaultPipelineConfig()
	config.LoadFromEnvironment()

	assert.Equal(t, 0.5, config.Pipe.Threshold)
	assert.Equal(t, 30*time.Second, config.Playback.PreloadLookahead)
	assert.Equal(t, 60*time.Second, config.Session.HeartbeatInterval)
	assert.Equal(t, 3, config.Playback.HistorySize)
	assert.Equal(t, "/var/cache/tarumae", config.Cache.Dir)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, []string{"--quiet", "--no-playlist"}, config.Decoder.Args)
	require.NoError(t, config.Validate())
}

func TestLoadFromEnvironmentIgnoresGarbage(t *testing.T) {
	t.Setenv("PIPE_THRESHOLD", "lots")
	t.Setenv("PRELOAD_LOOKAHEAD", "soon")

	config := DefaultPipelineConfig()
	config.LoadFromEnvironment()

	assert.Equal(t, 0.8, config.Pipe.Threshold)
	assert.Equal(t, 20*time.Second, config.Playback.PreloadLookahead)
}

func TestStructuredLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(core))

	child := logger.With(Component("relay"), GuildID("42"))
	child.Info("relay finished", Int64("bytes", 1024), Bool("eof", true))
	child.Debug("tick")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "relay finished", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "relay", ctx["component"])
	assert.Equal(t, "42", ctx["guild_id"])
	assert.Equal(t, int64(1024), ctx["bytes"])
	assert.Equal(t, true, ctx["eof"])
}

func TestNewStructuredLoggerFormats(t *testing.T) {
	for _, format := range []string{"json", "text", "console"} {
		t.Run(format, func(t *testing.T) {
			logger := NewStructuredLogger(LoggingConfig{Level: "debug", Format: format, Output: "stderr"})
			require.NotNil(t, logger)
			logger.With(String("format", format)).Debug("hello")
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("nonsense"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  ErrorCategory
		retryable bool
	}{
		{"categorized process", categorized{CategoryProcess}, CategoryProcess, true},
		{"categorized content", categorized{CategoryContent}, CategoryContent, false},
		{"wrapped metadata", fmt.Errorf("track: %w", categorized{CategoryMetadata}), CategoryMetadata, true},
		{"deadline", context.DeadlineExceeded, CategoryNetwork, true},
		{"plain", errors.New("boom"), CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := Classify(tt.err)
			require.NotNil(t, pe)
			assert.Equal(t, tt.category, pe.Category)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.ErrorIs(t, pe, tt.err)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestClassifyKeepsExistingPipelineError(t *testing.T) {
	original := NewPipelineError(errors.New("voice gone"), CategoryVoice, SeverityHigh)
	wrapped := fmt.Errorf("join: %w", original)

	assert.Same(t, original, Classify(wrapped))
	assert.Equal(t, "voice", original.Category.String())
	assert.Equal(t, "high", original.Severity.String())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IncTracksStarted()
	m.IncTracksStarted()
	m.RecordMaterializeFailure("extractor")
	m.AddRelayBytes(4096)
	m.AddRelayBytes(-1)
	m.ObserveGateWait(50 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TracksStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaterializeFailures.WithLabelValues("extractor")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.RelayBytes))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncTracksStarted()
		m.IncCrossfades()
		m.IncRadioReseeds()
		m.AddRelayBytes(10)
		m.RecordMaterializeFailure("disk")
		m.ObserveGateWait(time.Second)
	})
}
