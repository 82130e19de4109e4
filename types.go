package retrydlq

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hatsunemiku3939/retrydlq/config"
	"github.com/hatsunemiku3939/retrydlq/policy"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// Handler processes one consumed message.
type Handler func(ctx context.Context, msg types.Message) error

// Middleware composes cross-cutting concerns around a Handler.
type Middleware func(next Handler) Handler

// Dispatcher publishes failed messages to their retry or dead-letter destination.
// It owns delayed redelivery, attempt counting and dead-letter promotion.
type Dispatcher interface {
	// SendToRetryOrDeadLetter schedules a delayed retry, or dead-letters the
	// message once entry.MaxRetriesAttempts is exhausted.
	SendToRetryOrDeadLetter(ctx context.Context, msg types.Message, entry config.Entry) error
	// SendToDeadLetter routes the message to the dead-letter destination unconditionally.
	SendToDeadLetter(ctx context.Context, msg types.Message, entry config.Entry) error
}

// PolicyResolver returns the policy declared for a handler.
type PolicyResolver interface {
	Resolve(key types.HandlerKey) (*policy.Policy, error)
}

// ConfigResolver returns the topology configuration of an event.
type ConfigResolver interface {
	Resolve(eventName string) (config.Entry, error)
}

// Engine classifies handler failures and hands messages to the Dispatcher.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	policies   PolicyResolver
	configs    ConfigResolver
	dispatcher Dispatcher

	logger         Logger
	metrics        Metrics
	tracer         trace.Tracer
	publishTimeout time.Duration
}
