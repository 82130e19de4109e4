package retrydlq

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the engine metrics recorder.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for failure handling spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithPublishTimeout bounds each dispatcher call. Non-positive values are ignored.
func WithPublishTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.publishTimeout = d
		}
	}
}
