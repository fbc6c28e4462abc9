package pipeline

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for structured logging used across the engine
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a structured logging field
type Field = zap.Field

// String creates a string field
func String(key, value string) Field { return zap.String(key, value) }

// Int creates an integer field
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 creates an int64 field
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Float64 creates a float64 field
func Float64(key string, value float64) Field { return zap.Float64(key, value) }

// Bool creates a boolean field
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Duration creates a duration field
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Error creates an error field
func Error(err error) Field { return zap.Error(err) }

// Any creates a field with any value
func Any(key string, value interface{}) Field { return zap.Any(key, value) }

// GuildID tags a log line with the owning guild
func GuildID(id string) Field { return zap.String("guild_id", id) }

// Component tags a log line with the emitting component
func Component(name string) Field { return zap.String("component", name) }

// zapLogger adapts a zap.Logger to the Logger interface
type zapLogger struct {
	z *zap.Logger
}

// NewStructuredLogger creates a zap-backed logger from the logging config
func NewStructuredLogger(config LoggingConfig) Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		CallerKey:      "caller",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch config.Format {
	case "text", "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	output := zapcore.Lock(os.Stdout)
	if config.Output == "stderr" {
		output = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(encoder, output, parseLogLevel(config.Level))
	return &zapLogger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

// NewLoggerFromZap wraps an existing zap logger, mostly useful with zaptest/observer
func NewLoggerFromZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

// parseLogLevel converts string log level to a zap level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }

// With creates a new logger with additional fields
func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

// DefaultLogger creates a console logger at info level
func DefaultLogger() Logger {
	return NewStructuredLogger(LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	})
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}
