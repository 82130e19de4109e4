package retrydlq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatsunemiku3939/retrydlq/policy"
	"github.com/hatsunemiku3939/retrydlq/types"
)

const (
	tracerName = "github.com/hatsunemiku3939/retrydlq"

	// DefaultPublishTimeout bounds a single dispatcher call.
	DefaultPublishTimeout = 10 * time.Second
)

// NewEngine creates an Engine from its three collaborators.
func NewEngine(policies PolicyResolver, configs ConfigResolver, dispatcher Dispatcher, opts ...EngineOption) (*Engine, error) {
	switch {
	case policies == nil:
		return nil, fmt.Errorf("%w: policy resolver", ErrNilDependency)
	case configs == nil:
		return nil, fmt.Errorf("%w: config resolver", ErrNilDependency)
	case dispatcher == nil:
		return nil, fmt.Errorf("%w: dispatcher", ErrNilDependency)
	}

	e := &Engine{
		policies:   policies,
		configs:    configs,
		dispatcher: dispatcher,
		logger:     NopLogger{},
		metrics:    NopMetrics{},
		tracer:     otel.Tracer(tracerName),

		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Classify resolves the handler policy and classifies failure without dispatching.
func (e *Engine) Classify(key types.HandlerKey, failure error) (policy.Decision, error) {
	p, err := e.policies.Resolve(key)
	if err != nil {
		return policy.Decision{}, err
	}
	return policy.Classify(p, failure), nil
}

// HandleFailure decides what happens to msg after the handler identified by key
// failed with failure, and performs at most one publish.
//
// A nil error means the failure was absorbed: the message was discarded, sent to
// retry or dead-lettered. Errors match ErrConfigurationMissing or ErrPublish.
func (e *Engine) HandleFailure(ctx context.Context, key types.HandlerKey, failure error, msg types.Message) (policy.Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "retrydlq.HandleFailure",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("retrydlq.handler", string(key)),
			attribute.String("messaging.message.id", msg.ID),
		))
	defer span.End()

	p, err := e.policies.Resolve(key)
	if err != nil {
		e.logger.Error("no failure policy declared for handler", "handler", key, "message_id", msg.ID, "error", err)
		e.metrics.ObserveConfigurationMissing("")
		recordSpanError(span, err)
		return policy.Discarded, err
	}

	d := policy.Classify(p, failure)
	event := p.EventName()
	span.SetAttributes(
		attribute.String("retrydlq.event", event),
		attribute.String("retrydlq.failure.kind", d.Kind.Name()),
		attribute.String("retrydlq.outcome", d.Outcome.String()),
		attribute.String("retrydlq.rule", d.Rule.String()),
	)

	e.logger.Info("handler failed", "handler", key, "event", event, "kind", d.Kind.Name(), "error", failure)

	if d.Outcome == policy.Discarded {
		if d.Rule == policy.RuleUnclassified {
			e.logger.Error("discarding message after unclassified failure",
				"handler", key, "event", event, "kind", d.Kind.Name(), "message_id", msg.ID, "error", failure)
		} else {
			e.logger.Warn("failure declared to be discarded",
				"handler", key, "event", event, "kind", d.Kind.Name(), "message_id", msg.ID)
		}
		e.metrics.ObserveOutcome(event, d.Outcome, d.Rule)
		return d.Outcome, nil
	}

	entry, err := e.configs.Resolve(event)
	if err != nil {
		e.logger.Error("no configuration for event", "handler", key, "event", event, "message_id", msg.ID, "error", err)
		e.metrics.ObserveConfigurationMissing(event)
		recordSpanError(span, err)
		return d.Outcome, err
	}

	// The publish outlives the handler's context: it keeps its values, not its
	// cancellation or deadline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.publishTimeout)
	defer cancel()

	switch d.Outcome {
	case policy.SentToDeadLetter:
		err = e.dispatcher.SendToDeadLetter(pubCtx, msg, entry)
	default:
		err = e.dispatcher.SendToRetryOrDeadLetter(pubCtx, msg, entry)
	}
	if err != nil {
		perr := &PublishError{
			Handler:   key,
			EventName: event,
			Kind:      d.Kind.Name(),
			MessageID: msg.ID,
			Outcome:   d.Outcome,
			Err:       err,
		}
		e.logger.Error("failed to publish failed message",
			"handler", key, "event", event, "kind", d.Kind.Name(), "message_id", msg.ID,
			"outcome", d.Outcome.String(), "error", err)
		e.metrics.ObservePublishError(event, d.Outcome)
		recordSpanError(span, perr)
		return d.Outcome, perr
	}

	e.logger.Info("message dispatched", "handler", key, "event", event, "kind", d.Kind.Name(),
		"message_id", msg.ID, "outcome", d.Outcome.String())
	e.metrics.ObserveOutcome(event, d.Outcome, d.Rule)
	return d.Outcome, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// IsConfigurationMissing reports whether err was caused by a missing policy or event configuration.
func IsConfigurationMissing(err error) bool { return errors.Is(err, ErrConfigurationMissing) }
