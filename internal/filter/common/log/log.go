// Package log wraps zap behind a small leveled interface with loosely-typed
// field maps, so the rest of the daemon never imports zap directly.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the daemon-wide logging interface. Fields may be nil.
type Logger interface {
	Debug(fields map[string]any, msg string)
	Info(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

var global Logger = newZap(false, zapcore.InfoLevel)

// Configure rebuilds the global logger for the given environment and level.
// Anything other than "prod" gets the human-readable development encoder.
func Configure(env, level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	global = newZap(env != "prod", lvl)
	return nil
}

// SetLogger swaps the global logger, mainly for tests.
func SetLogger(l Logger) { global = l }

// GetLogger returns the global logger for injection into components.
func GetLogger() Logger { return global }

// Sync flushes any buffered log entries. Called on shutdown.
func Sync() {
	if z, ok := global.(*zapLogger); ok {
		_ = z.base.Sync()
	}
}

// Package-level helpers logging through the global instance.
func Debug(fields map[string]any, msg string) { global.Debug(fields, msg) }
func Info(fields map[string]any, msg string)  { global.Info(fields, msg) }
func Warn(fields map[string]any, msg string)  { global.Warn(fields, msg) }
func Error(fields map[string]any, msg string) { global.Error(fields, msg) }
func Fatal(fields map[string]any, msg string) { global.Fatal(fields, msg) }

type zapLogger struct {
	base *zap.Logger
}

func newZap(dev bool, level zapcore.Level) Logger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"

	logger, _ := cfg.Build(zap.AddCallerSkip(1))
	return &zapLogger{base: logger}
}

func (l *zapLogger) log(level zapcore.Level, fields map[string]any, msg string) {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	if ce := l.base.Check(level, msg); ce != nil {
		ce.Write(zf...)
	}
}

func (l *zapLogger) Debug(fields map[string]any, msg string) { l.log(zapcore.DebugLevel, fields, msg) }
func (l *zapLogger) Info(fields map[string]any, msg string)  { l.log(zapcore.InfoLevel, fields, msg) }
func (l *zapLogger) Warn(fields map[string]any, msg string)  { l.log(zapcore.WarnLevel, fields, msg) }
func (l *zapLogger) Error(fields map[string]any, msg string) { l.log(zapcore.ErrorLevel, fields, msg) }

func (l *zapLogger) Fatal(fields map[string]any, msg string) {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	l.base.Fatal(msg, zf...)
}

type noopLogger struct{}

func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}
func (noopLogger) Fatal(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards everything. Used in tests.
func NewNoopLogger() Logger { return noopLogger{} }
