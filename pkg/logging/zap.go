// Package logging adapts structured loggers to the key/value Logger used by retrydlq.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const callerSkipFrames = 1

// Zap adapts a *zap.Logger to retrydlq.Logger.
type Zap struct {
	sugar *zap.SugaredLogger
}

// NewZap wraps l. A nil l yields a no-op logger.
func NewZap(l *zap.Logger) *Zap {
	if l == nil {
		l = zap.NewNop()
	}
	return &Zap{sugar: l.WithOptions(zap.AddCallerSkip(callerSkipFrames)).Sugar()}
}

// NewProductionZap builds a JSON zap logger at the given level ("debug", "info", ...).
// An empty level means info.
func NewProductionZap(level string) (*Zap, error) {
	parsed := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		if err := parsed.Set(level); err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true

	built, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return NewZap(built), nil
}

// Debug implements retrydlq.Logger.
func (z *Zap) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Info implements retrydlq.Logger.
func (z *Zap) Info(msg string, args ...any) { z.sugar.Infow(msg, args...) }

// Warn implements retrydlq.Logger.
func (z *Zap) Warn(msg string, args ...any) { z.sugar.Warnw(msg, args...) }

// Error implements retrydlq.Logger.
func (z *Zap) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// Sync flushes buffered log entries.
func (z *Zap) Sync() error { return z.sugar.Sync() }
