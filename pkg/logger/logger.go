// Package logger wires chatpay-core's two long-running processes
// (cmd/api's webhook-driven service graph, cmd/worker's queue/scheduler
// loop) to one process-wide zap.Logger, honoring the LOG_LEVEL/LOG_FILE
// knobs spec §6 names (APP_NAME/ENVIRONMENT select the encoder, LOG_LEVEL
// overrides the default level per environment, LOG_FILE adds a second
// sink alongside stdout so an operator can tail a queue worker's DLQ
// warnings without a log shipper).
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance used throughout the application
var Log *zap.Logger

// Init builds the process-wide logger for service (e.g. "chatpay-api",
// "chatpay-worker" — tags every line with it so interleaved output from
// both processes in the same log aggregator is attributable), driven by
// environment (spec's ENVIRONMENT: "production" selects JSON encoding,
// anything else a colored console), level (spec's LOG_LEVEL; empty falls
// back to the environment's default), and logFile (spec's LOG_FILE; when
// set, lines are written to both stdout and that path).
func Init(service, environment, level, logFile string) error {
	var cfg zap.Config

	if environment == "production" {
		cfg = zap.Config{
			Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
			Encoding:         "json",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig: zapcore.EncoderConfig{
				TimeKey:        "timestamp",
				LevelKey:       "level",
				NameKey:        "logger",
				CallerKey:      "caller",
				MessageKey:     "message",
				StacktraceKey:  "stacktrace",
				LineEnding:     zapcore.DefaultLineEnding,
				EncodeLevel:    zapcore.LowercaseLevelEncoder,
				EncodeTime:     zapcore.ISO8601TimeEncoder,
				EncodeDuration: zapcore.SecondsDurationEncoder,
				EncodeCaller:   zapcore.ShortCallerEncoder,
			},
		}
	} else {
		cfg = zap.Config{
			Level:            zap.NewAtomicLevelAt(zap.DebugLevel),
			Encoding:         "console",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
			EncoderConfig: zapcore.EncoderConfig{
				TimeKey:        "T",
				LevelKey:       "L",
				NameKey:        "N",
				CallerKey:      "C",
				MessageKey:     "M",
				StacktraceKey:  "S",
				LineEnding:     zapcore.DefaultLineEnding,
				EncodeLevel:    zapcore.CapitalColorLevelEncoder,
				EncodeTime:     zapcore.ISO8601TimeEncoder,
				EncodeDuration: zapcore.StringDurationEncoder,
				EncodeCaller:   zapcore.ShortCallerEncoder,
			},
		}
	}

	if level != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(level)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, logFile)
	}

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	if service != "" {
		built = built.Named(service)
	}
	Log = built
	return nil
}

// Sync flushes any buffered log entries
// Should be called before application exits (typically with defer)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

// Info logs an informational message
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Debug logs a debug message (only visible in development mode)
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal logs a fatal message and exits the application
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

// With creates a child logger with additional fields
// Useful for adding context that applies to multiple log statements
func With(fields ...zap.Field) *zap.Logger {
	return Log.With(fields...)
}

// Correlation tags a log line with the support-lookup id spec §7 requires
// on every Internal/LedgerFailure user reply, so an operator can grep a
// ticket's correlation id straight to the write that produced it.
func Correlation(id string) zap.Field {
	return zap.String("correlation_id", id)
}
