package dispatcher

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hatsunemiku3939/retrydlq/config"
)

var (
	// ErrMissingQueue is returned when a topology is declared for an entry without a queue.
	ErrMissingQueue = errors.New("entry has no queue")
	// ErrUnsupportedExchangeType is returned for exchange types that ignore routing keys.
	ErrUnsupportedExchangeType = errors.New("unsupported exchange type")
)

// TopologyChannel defines the AMQP channel operations required for topology setup.
type TopologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology declares the exchange and the three queues of entry:
//
//	<queue>        bound with RoutingBase
//	<queue>.retry  bound with RetryRoutingKey, dead-letters expired messages back to RoutingBase
//	<queue>.dlq    bound with DeadLetterRoutingKey
//
// Without an exchange the default exchange is used and every routing key is the
// queue name itself, so no bindings are declared. Exchange types other than
// direct and topic are rejected because they would deliver one publish to all
// three queues.
//
// Declarations are idempotent as long as the existing arguments match.
func DeclareTopology(ch TopologyChannel, entry config.Entry) error {
	if ch == nil {
		return fmt.Errorf("declare topology: %w", ErrNilClient)
	}
	if entry.Queue == "" {
		return fmt.Errorf("declare topology for %s: %w", entry.Name, ErrMissingQueue)
	}

	if entry.Exchange != "" && !config.SupportedExchangeType(entry.ExchangeType) {
		return fmt.Errorf("declare topology for %s: %w: %q", entry.Name, ErrUnsupportedExchangeType, entry.ExchangeType)
	}

	if entry.Exchange != "" {
		if err := ch.ExchangeDeclare(entry.Exchange, entry.ExchangeType, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", entry.Exchange, err)
		}
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    entry.Exchange,
		"x-dead-letter-routing-key": entry.RoutingBase(),
	}

	queues := []struct {
		name string
		key  string
		args amqp.Table
	}{
		{name: entry.Queue, key: entry.RoutingBase()},
		{name: entry.RetryQueue(), key: entry.RetryRoutingKey(), args: retryArgs},
		{name: entry.DeadLetterQueue(), key: entry.DeadLetterRoutingKey()},
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
		if entry.Exchange == "" {
			continue
		}
		if err := ch.QueueBind(q.name, q.key, entry.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", q.name, entry.Exchange, err)
		}
	}
	return nil
}
