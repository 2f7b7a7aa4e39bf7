// Package logger provides the process-wide structured logger.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance. Until Init is called it is a no-op
// logger, or nil when BILLING_CORE_SKIP_DEFAULT_LOGGER is set; every
// long-running command (cmd/api, cmd/pricingworker, cmd/scheduler) must call
// Init before doing anything else.
var Log *zap.Logger

// Init builds the global logger. stage selects the encoder: "prod" gets JSON
// output with ISO8601 timestamps, anything else gets a human-readable
// development encoder.
func Init(stage string) {
	var cfg zap.Config
	if stage == "prod" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	Log = built
}

func init() {
	// Keep Log usable (e.g. in package-level tests) even if Init was never
	// called explicitly.
	if os.Getenv("BILLING_CORE_SKIP_DEFAULT_LOGGER") == "" {
		Log = zap.NewNop()
	}
}

func Info(msg string, fields ...zapcore.Field)  { Log.Info(msg, fields...) }
func Error(msg string, fields ...zapcore.Field) { Log.Error(msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { Log.Warn(msg, fields...) }
func Debug(msg string, fields ...zapcore.Field) { Log.Debug(msg, fields...) }
func Fatal(msg string, fields ...zapcore.Field) { Log.Fatal(msg, fields...) }

// With returns a child logger carrying the given structured fields.
func With(fields ...zapcore.Field) *zap.Logger { return Log.With(fields...) }

// Sync flushes buffered log entries. Call it in a deferred statement from
// main so nothing is lost on process exit.
func Sync() error { return Log.Sync() }
