// Package zap adapts go.uber.org/zap to swcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/swcache"
)

var _ swcache.Logger = Logger{}

// Logger writes swcache fields as zap fields. Error values become
// zap.NamedError so they keep their structure in encoders.
type Logger struct{ L *zap.Logger }

// New wraps l, skipping the adapter frame in caller annotations.
func New(l *zap.Logger) Logger { return Logger{L: l.WithOptions(zap.AddCallerSkip(1))} }

func (z Logger) Debug(msg string, f swcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f swcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f swcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f swcache.Fields) { z.L.Error(msg, fields(f)...) }

// Build returns a production JSON logger at level (debug, info, warn, error;
// anything else is info) with ISO8601 timestamps under "timestamp".
func Build(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	return cfg.Build()
}

func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fields(f swcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
