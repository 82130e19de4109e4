package dispatcher

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type binding struct {
	queue    string
	key      string
	exchange string
}

type fakeChannel struct {
	exchanges  map[string]string
	queues     map[string]amqp.Table
	bindings   []binding
	declareErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: map[string]string{}, queues: map[string]amqp.Table{}}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bindings = append(f.bindings, binding{name, key, exchange})
	return nil
}

func TestDeclareTopology(t *testing.T) {
	ch := newFakeChannel()
	entry := testEntry()
	entry.ExchangeType = "topic"

	require.NoError(t, DeclareTopology(ch, entry))

	assert.Equal(t, map[string]string{"ex.test": "topic"}, ch.exchanges)
	assert.Len(t, ch.queues, 3)
	assert.Equal(t, amqp.Table{
		"x-dead-letter-exchange":    "ex.test",
		"x-dead-letter-routing-key": "routing.key.test",
	}, ch.queues["queue.test.retry"])
	assert.Nil(t, ch.queues["queue.test.dlq"])
	assert.Equal(t, []binding{
		{"queue.test", "routing.key.test", "ex.test"},
		{"queue.test.retry", "routing.key.test.retry", "ex.test"},
		{"queue.test.dlq", "routing.key.test.dlq", "ex.test"},
	}, ch.bindings)
}

func TestDeclareTopologyErrors(t *testing.T) {
	assert.ErrorIs(t, DeclareTopology(nil, testEntry()), ErrNilClient)

	entry := testEntry()
	entry.Queue = ""
	assert.ErrorIs(t, DeclareTopology(newFakeChannel(), entry), ErrMissingQueue)

	boom := errors.New("precondition failed")
	ch := newFakeChannel()
	ch.declareErr = boom
	assert.ErrorIs(t, DeclareTopology(ch, testEntry()), boom)
}

func TestDeclareTopologyDefaultExchange(t *testing.T) {
	ch := newFakeChannel()
	entry := testEntry()
	entry.Exchange = ""

	require.NoError(t, DeclareTopology(ch, entry))

	assert.Empty(t, ch.exchanges)
	assert.Empty(t, ch.bindings)
	assert.Equal(t, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": "queue.test",
	}, ch.queues["queue.test.retry"])

	// publishes must target the declared queues by name
	_, hasRetry := ch.queues[entry.RetryRoutingKey()]
	_, hasDLQ := ch.queues[entry.DeadLetterRoutingKey()]
	assert.True(t, hasRetry)
	assert.True(t, hasDLQ)
}

func TestDeclareTopologyRejectsKeylessExchanges(t *testing.T) {
	for _, kind := range []string{"fanout", "headers"} {
		t.Run(kind, func(t *testing.T) {
			ch := newFakeChannel()
			entry := testEntry()
			entry.ExchangeType = kind

			err := DeclareTopology(ch, entry)
			assert.ErrorIs(t, err, ErrUnsupportedExchangeType)
			assert.Empty(t, ch.exchanges)
			assert.Empty(t, ch.queues)
		})
	}
}
