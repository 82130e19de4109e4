package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hatsunemiku3939/retrydlq/config"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// DeathHeader is the header RabbitMQ maintains on dead-lettered messages.
const DeathHeader = "x-death"

// Publisher is the subset of *amqp.Channel used to publish messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP sends failed messages to RabbitMQ retry and dead-letter queues.
//
// Retries are published to the event exchange with the entry's retry routing
// key and a per-message expiration. The retry queue is expected to dead-letter
// expired messages back to the work queue, which makes the broker append
// to the x-death header that is used here as the attempt counter.
type AMQP struct {
	pub Publisher
	now func() time.Time
}

// NewAMQP creates an AMQP dispatcher.
func NewAMQP(pub Publisher) (*AMQP, error) {
	if pub == nil {
		return nil, fmt.Errorf("amqp dispatcher: %w", ErrNilClient)
	}
	return &AMQP{pub: pub, now: time.Now}, nil
}

// SendToRetryOrDeadLetter publishes msg to the retry queue, or to the
// dead-letter queue when the x-death count reached entry.MaxRetriesAttempts.
func (d *AMQP) SendToRetryOrDeadLetter(ctx context.Context, msg types.Message, entry config.Entry) error {
	if entry.Exchange == "" && entry.Queue == "" {
		return fmt.Errorf("event %s: %w", entry.Name, ErrMissingRetryTarget)
	}
	attempts := DeathCount(msg.Headers)
	if attempts >= entry.MaxRetriesAttempts {
		return d.SendToDeadLetter(ctx, msg, entry)
	}

	pub := d.publishing(msg)
	pub.Expiration = strconv.FormatInt(max(entry.RetryDelay(attempts).Milliseconds(), 1), 10)

	if err := d.pub.PublishWithContext(ctx, entry.Exchange, entry.RetryRoutingKey(), false, false, pub); err != nil {
		return fmt.Errorf("publish to retry %s/%s: %w", entry.Exchange, entry.RetryRoutingKey(), err)
	}
	return nil
}

// SendToDeadLetter publishes msg to the dead-letter queue.
func (d *AMQP) SendToDeadLetter(ctx context.Context, msg types.Message, entry config.Entry) error {
	if entry.Exchange == "" && entry.Queue == "" {
		return fmt.Errorf("event %s: %w", entry.Name, ErrMissingDeadLetterTarget)
	}
	pub := d.publishing(msg)
	if err := d.pub.PublishWithContext(ctx, entry.Exchange, entry.DeadLetterRoutingKey(), false, false, pub); err != nil {
		return fmt.Errorf("publish to dead letter %s/%s: %w", entry.Exchange, entry.DeadLetterRoutingKey(), err)
	}
	return nil
}

func (d *AMQP) publishing(msg types.Message) amqp.Publishing {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return amqp.Publishing{
		Headers:      amqp.Table(msg.CloneHeaders()),
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    d.now(),
		Body:         msg.Body,
	}
}

// DeathCount sums the count fields of an x-death header.
func DeathCount(headers map[string]any) int {
	deaths, ok := headers[DeathHeader].([]any)
	if !ok {
		return 0
	}
	total := 0
	for _, death := range deaths {
		var table map[string]any
		switch t := death.(type) {
		case amqp.Table:
			table = t
		case map[string]any:
			table = t
		default:
			continue
		}
		total += types.Message{Headers: table}.IntHeader("count")
	}
	return total
}
