// Package telemetry carries the ambient concerns spec.md leaves implicit:
// structured logging, error wrapping, id generation and graceful shutdown,
// in the same shape the teacher repo's kernel/utils package used but
// backed by the zap structured logger instead of a hand-rolled writer.
package telemetry

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a re-export of zap's field type so callers don't import zap
// directly just to build log lines, mirroring the teacher's own
// utils.Field indirection over its hand-rolled logger.
type Field = zap.Field

// Logger wraps *zap.Logger with the component-scoped, chainable shape the
// teacher's utils.Logger exposed (NewLogger/DefaultLogger/With).
type Logger struct {
	z *zap.Logger
}

// Config configures a Logger instance.
type Config struct {
	Component string
	Level     zapcore.Level
	Console   bool // human-readable console encoding instead of JSON
}

// New creates a Logger from Config.
func New(cfg Config) *Logger {
	level := cfg.Level
	encoding := "json"
	encoderCfg := zap.NewProductionEncoderConfig()
	if cfg.Console {
		encoding = "console"
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	z, err := zc.Build()
	if err != nil {
		// zap.Config.Build only fails on misconfiguration; fall back to
		// zap's example logger rather than panicking on a logging path.
		z = zap.NewExample()
	}
	if cfg.Component != "" {
		z = z.Named(cfg.Component)
	}
	return &Logger{z: z}
}

// Default creates a console-friendly INFO logger for the given component,
// matching the teacher's utils.DefaultLogger convenience constructor.
func Default(component string) *Logger {
	return New(Config{Component: component, Level: zapcore.InfoLevel, Console: true})
}

// With returns a child Logger carrying additional structured fields on
// every subsequent call, same contract as the teacher's Logger.With.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Named scopes the logger under an additional component name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Fatal logs at error level and then exits the process with status 1,
// matching the teacher's utils.Logger.Fatal behavior.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.z.Error(msg, fields...)
	os.Exit(1)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Field constructors, mirroring the teacher's utils.String/Int/Err/etc.
func String(key, value string) Field       { return zap.String(key, value) }
func Int(key string, value int) Field      { return zap.Int(key, value) }
func Int64(key string, value int64) Field  { return zap.Int64(key, value) }
func Uint64(key string, v uint64) Field    { return zap.Uint64(key, v) }
func Float64(key string, v float64) Field  { return zap.Float64(key, v) }
func Bool(key string, value bool) Field    { return zap.Bool(key, value) }
func Err(err error) Field                        { return zap.Error(err) }
func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }
func Any(key string, value interface{}) Field    { return zap.Any(key, value) }

// global logger, matching the teacher's package-level Debug/Info/... helpers
var global = Default("simcore")

// SetGlobal replaces the global logger instance.
func SetGlobal(l *Logger) { global = l }

func Debug(msg string, fields ...Field) { global.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { global.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { global.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { global.Error(msg, fields...) }
