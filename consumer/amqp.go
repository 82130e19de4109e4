package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hatsunemiku3939/retrydlq"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// AMQP runs a handler over RabbitMQ deliveries.
//
// A nil handler result acks the delivery. A publish error nacks it with requeue
// so the broker redelivers it. Any other error, such as a missing configuration,
// nacks it without requeue so the queue's own dead-letter exchange applies.
type AMQP struct {
	deliveries <-chan amqp.Delivery
	handler    retrydlq.Handler
	logger     retrydlq.Logger

	processingTimeout time.Duration
}

// NewAMQP creates a consumer reading from deliveries, usually the result of
// (*amqp.Channel).ConsumeWithContext.
func NewAMQP(deliveries <-chan amqp.Delivery, handler retrydlq.Handler, opts ...Option) (*AMQP, error) {
	switch {
	case deliveries == nil:
		return nil, fmt.Errorf("%w: deliveries", retrydlq.ErrNilDependency)
	case handler == nil:
		return nil, fmt.Errorf("%w: handler", retrydlq.ErrNilDependency)
	}
	o := buildOptions(opts)
	return &AMQP{
		deliveries:        deliveries,
		handler:           handler,
		logger:            o.logger,
		processingTimeout: o.processingTimeout,
	}, nil
}

// Start processes deliveries until ctx is canceled or the channel is closed,
// then waits for in-flight deliveries.
func (c *AMQP) Start(ctx context.Context) {
	c.logger.Info("amqp consumer started")
	var wg sync.WaitGroup

loop:
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutdown initiated, no longer consuming deliveries")
			break loop
		case d, ok := <-c.deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed")
				break loop
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				msgCtx, cancel := context.WithTimeout(context.Background(), c.processingTimeout)
				defer cancel()
				c.processDelivery(msgCtx, d)
			}(d)
		}
	}

	c.logger.Info("waiting for in-flight deliveries to be processed")
	wg.Wait()
	c.logger.Info("graceful shutdown complete")
}

func (c *AMQP) processDelivery(ctx context.Context, d amqp.Delivery) {
	m := FromDelivery(d)

	err := c.handler(ctx, m)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack delivery", "message_id", m.ID, "error", ackErr)
		}
		return
	}

	requeue := errors.Is(err, retrydlq.ErrPublish)
	c.logger.Error("rejecting delivery", "message_id", m.ID, "requeue", requeue, "error", err)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		c.logger.Error("failed to nack delivery", "message_id", m.ID, "error", nackErr)
	}
}

// FromDelivery converts a RabbitMQ delivery into a transport-neutral Message.
func FromDelivery(d amqp.Delivery) types.Message {
	headers := make(map[string]any, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = v
	}
	return types.Message{
		ID:          d.MessageId,
		Body:        d.Body,
		ContentType: d.ContentType,
		Headers:     headers,
	}
}
