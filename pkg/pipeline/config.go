package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PipelineConfig contains the tunables consumed by the playback engine
type PipelineConfig struct {
	Decoder     CommandConfig   `json:"decoder"`
	Transcoder  TranscodeConfig `json:"transcoder"`
	Downloader  CommandConfig   `json:"downloader"`
	Recommender CommandConfig   `json:"recommender"`
	Pipe        PipeConfig      `json:"pipe"`
	Playback    PlaybackConfig  `json:"playback"`
	Session     SessionConfig   `json:"session"`
	Cache       CacheConfig     `json:"cache"`
	Direct      DirectConfig    `json:"direct"`
	Database    DatabaseConfig  `json:"database"`
	Logging     LoggingConfig   `json:"logging"`
	Metrics     MetricsConfig   `json:"metrics"`
}

// CommandConfig describes an external helper process
type CommandConfig struct {
	BinaryPath string   `json:"binary_path"`
	Args       []string `json:"args"`
}

// TranscodeConfig describes the transcoder; the input is placed between
// InputArgs and OutputArgs as "-i <input>".
type TranscodeConfig struct {
	BinaryPath string   `json:"binary_path"`
	InputArgs  []string `json:"input_args"`
	OutputArgs []string `json:"output_args"`
}

// PipeConfig contains configuration for the relay and backpressure gate
type PipeConfig struct {
	Threshold       float64       `json:"threshold"`
	PollInterval    time.Duration `json:"poll_interval"`
	DefaultCapacity int           `json:"default_capacity"`
	ChunkSize       int           `json:"chunk_size"`
}

// PlaybackConfig contains queue, radio and crossfade tunables
type PlaybackConfig struct {
	PreloadLookahead  time.Duration `json:"preload_lookahead"`
	HistorySize       int           `json:"history_size"`
	RetryBudget       int           `json:"retry_budget"`
	RadioRetryBudget  int           `json:"radio_retry_budget"`
	RadioLimit        int           `json:"radio_limit"`
	RadioBitrate      int           `json:"radio_bitrate"`
	CrossfadeDuration time.Duration `json:"crossfade_duration"`
	CrossfadePeak     int           `json:"crossfade_peak"`
}

// SessionConfig contains voice session tunables
type SessionConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	JoinRetries       int           `json:"join_retries"`
	JoinTimeout       time.Duration `json:"join_timeout"`
	OpusBitrate       int           `json:"opus_bitrate"`
}

// CacheConfig contains the on-disk cache layout
type CacheConfig struct {
	Dir         string        `json:"dir"`
	DownloadTTL time.Duration `json:"download_ttl"`
}

// DirectConfig contains configuration for the direct HTTP backend
type DirectConfig struct {
	Hosts   []string      `json:"hosts"`
	Timeout time.Duration `json:"timeout"`
}

// DatabaseConfig contains the cold queue store location
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// MetricsConfig contains the prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `json:"addr"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults
func DefaultPipelineConfig() *PipelineConfig {
	cacheDir := filepath.Join(os.TempDir(), "tarumae-cache")

	return &PipelineConfig{
		Decoder: CommandConfig{
			BinaryPath: "tarumae-extract",
		},
		Transcoder: TranscodeConfig{
			BinaryPath: "ffmpeg",
			InputArgs:  []string{"-hide_banner", "-loglevel", "error"},
			OutputArgs: []string{
				"-vn",
				"-f", "f32le",
				"-ar", "48000",
				"-ac", "2",
				"pipe:1",
			},
		},
		Downloader: CommandConfig{
			BinaryPath: "tarumae-download",
		},
		Recommender: CommandConfig{
			BinaryPath: "tarumae-recommend",
		},
		Pipe: PipeConfig{
			Threshold:       0.8,
			PollInterval:    500 * time.Microsecond,
			DefaultCapacity: 1 << 20,
			ChunkSize:       64 << 10,
		},
		Playback: PlaybackConfig{
			PreloadLookahead:  20 * time.Second,
			HistorySize:       10,
			RetryBudget:       4,
			RadioRetryBudget:  5,
			RadioLimit:        20,
			RadioBitrate:      96000,
			CrossfadeDuration: 10 * time.Second,
			CrossfadePeak:     10000,
		},
		Session: SessionConfig{
			HeartbeatInterval: 720 * time.Second,
			JoinRetries:       3,
			JoinTimeout:       10 * time.Second,
			OpusBitrate:       128000,
		},
		Cache: CacheConfig{
			Dir:         cacheDir,
			DownloadTTL: 6 * time.Hour,
		},
		Direct: DirectConfig{
			Hosts:   []string{"cdn.discordapp.com", "media.discordapp.net"},
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(cacheDir, "queues.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromEnvironment loads configuration values from environment variables
func (c *PipelineConfig) LoadFromEnvironment() {
	// External commands
	if val := os.Getenv("PIPELINE_DECODER_PATH"); val != "" {
		c.Decoder.BinaryPath = val
	}
	if val := os.Getenv("PIPELINE_DECODER_ARGS"); val != "" {
		c.Decoder.Args = strings.Fields(val)
	}
	if val := os.Getenv("PIPELINE_FFMPEG_PATH"); val != "" {
		c.Transcoder.BinaryPath = val
	}
	if val := os.Getenv("PIPELINE_DOWNLOADER_PATH"); val != "" {
		c.Downloader.BinaryPath = val
	}
	if val := os.Getenv("PIPELINE_DOWNLOADER_ARGS"); val != "" {
		c.Downloader.Args = strings.Fields(val)
	}
	if val := os.Getenv("PIPELINE_RECOMMENDER_PATH"); val != "" {
		c.Recommender.BinaryPath = val
	}

	// Pipe
	if val := os.Getenv("PIPE_THRESHOLD"); val != "" {
		if threshold, err := strconv.ParseFloat(val, 64); err == nil {
			c.Pipe.Threshold = threshold
		}
	}

	// Playback
	c.Playback.PreloadLookahead = envDuration("PRELOAD_LOOKAHEAD", c.Playback.PreloadLookahead)
	c.Playback.CrossfadeDuration = envDuration("CROSSFADE_DURATION", c.Playback.CrossfadeDuration)
	if val := os.Getenv("HISTORY_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.Playback.HistorySize = size
		}
	}
	if val := os.Getenv("RADIO_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			c.Playback.RadioLimit = limit
		}
	}

	// Session
	c.Session.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", c.Session.HeartbeatInterval)

	// Storage
	if val := os.Getenv("CACHE_DIR"); val != "" {
		c.Cache.Dir = val
	}
	if val := os.Getenv("DATABASE_PATH"); val != "" {
		c.Database.Path = val
	}
	if val := os.Getenv("DIRECT_MEDIA_HOSTS"); val != "" {
		c.Direct.Hosts = append(c.Direct.Hosts, strings.Split(val, ",")...)
	}

	// Logging
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}

	if val := os.Getenv("METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
}

// envDuration accepts either a Go duration ("20s") or a bare number of seconds ("720")
func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

// Validate validates the configuration and returns any errors
func (c *PipelineConfig) Validate() error {
	var errors []string

	if c.Decoder.BinaryPath == "" {
		errors = append(errors, "decoder binary_path cannot be empty")
	}
	if c.Transcoder.BinaryPath == "" {
		errors = append(errors, "transcoder binary_path cannot be empty")
	}

	if c.Pipe.Threshold <= 0 || c.Pipe.Threshold > 1 {
		errors = append(errors, "pipe threshold must be in (0, 1]")
	}
	if c.Pipe.PollInterval <= 0 {
		errors = append(errors, "pipe poll_interval must be > 0")
	}
	if c.Pipe.DefaultCapacity <= 0 {
		errors = append(errors, "pipe default_capacity must be > 0")
	}
	if c.Pipe.ChunkSize <= 0 {
		errors = append(errors, "pipe chunk_size must be > 0")
	}

	if c.Playback.HistorySize <= 0 {
		errors = append(errors, "playback history_size must be > 0")
	}
	if c.Playback.PreloadLookahead < 0 {
		errors = append(errors, "playback preload_lookahead must be >= 0")
	}
	if c.Playback.RetryBudget <= 0 || c.Playback.RadioRetryBudget <= 0 {
		errors = append(errors, "playback retry budgets must be > 0")
	}
	if c.Playback.CrossfadePeak <= 0 {
		errors = append(errors, "playback crossfade_peak must be > 0")
	}
	if c.Playback.CrossfadeDuration <= 0 {
		errors = append(errors, "playback crossfade_duration must be > 0")
	}

	if c.Session.HeartbeatInterval <= 0 {
		errors = append(errors, "session heartbeat_interval must be > 0")
	}

	if c.Cache.Dir == "" {
		errors = append(errors, "cache dir cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "logging level must be one of: debug, info, warn, error, fatal")
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "logging format must be one of: json, text, console")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}
