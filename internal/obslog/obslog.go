// Package obslog is the structured logging facade used by every component
// in the Launch Manager and Health Monitor daemons. It keeps the
// field-based call shape of the teacher's hand-rolled logger
// (Info(msg, fields...)) but is backed by zap so encoding, sampling and
// level filtering are production-grade instead of hand-rolled.
package obslog

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a re-export of zap.Field so call sites never import zap
// directly.
type Field = zap.Field

// Logger wraps *zap.Logger with the component-scoped constructor the rest
// of the module expects.
type Logger struct {
	z *zap.Logger
}

// New builds a production logger writing structured JSON, named after
// component.
func New(component string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.Named(component)}
}

// NewDevelopment builds a human-readable console logger. The daemons in
// cmd/ use New instead.
func NewDevelopment(component string) *Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.Named(component)}
}

// Named returns a child logger scoped to a sub-component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

// With returns a child logger with the given fields always attached.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }

// Sync flushes buffered log entries; daemons call this on shutdown.
func (l *Logger) Sync() error { return l.z.Sync() }

// Field constructors, matching the teacher's String/Int/Err/Duration/Any
// call shape.

func String(key, value string) Field       { return zap.String(key, value) }
func Int(key string, value int) Field      { return zap.Int(key, value) }
func Int64(key string, value int64) Field  { return zap.Int64(key, value) }
func Uint64(key string, value uint64) Field { return zap.Uint64(key, value) }
func Float64(key string, value float64) Field { return zap.Float64(key, value) }
func Bool(key string, value bool) Field    { return zap.Bool(key, value) }
func Err(err error) Field                  { return zap.Error(err) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Any(key string, value interface{}) Field { return zap.Any(key, value) }
