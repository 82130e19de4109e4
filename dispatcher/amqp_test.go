package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hatsunemiku3939/retrydlq/config"
	"github.com/hatsunemiku3939/retrydlq/types"
)

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, msg)
	return args.Error(0)
}

func testEntry() config.Entry {
	return config.Entry{
		Name:               "some-event",
		Queue:              "queue.test",
		Exchange:           "ex.test",
		RoutingKey:         "routing.key.test",
		RetryTTL:           5 * time.Second,
		TTLMultiply:        2,
		MaxRetriesAttempts: 3,
	}
}

func messageWithDeaths(counts ...int64) types.Message {
	deaths := make([]any, 0, len(counts))
	for _, c := range counts {
		deaths = append(deaths, amqp.Table{"count": c, "queue": "queue.test.retry"})
	}
	return types.Message{
		ID:          "msg-1",
		Body:        []byte("some"),
		ContentType: "application/json",
		Headers:     map[string]any{DeathHeader: deaths, "tenant": "acme"},
	}
}

func TestNewAMQPRequiresPublisher(t *testing.T) {
	_, err := NewAMQP(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestAMQP_SendToRetryOrDeadLetter(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name           string
		msg            types.Message
		wantKey        string
		wantExpiration string
	}{
		{
			name:           "first failure goes to retry with base ttl",
			msg:            types.Message{ID: "msg-1", Body: []byte("some")},
			wantKey:        "routing.key.test.retry",
			wantExpiration: "5000",
		},
		{
			name:           "ttl grows with previous deaths",
			msg:            messageWithDeaths(2),
			wantKey:        "routing.key.test.retry",
			wantExpiration: "20000",
		},
		{
			name:    "attempts exhausted promotes to dead letter",
			msg:     messageWithDeaths(1, 2),
			wantKey: "routing.key.test.dlq",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := new(MockPublisher)
			d, err := NewAMQP(pub)
			require.NoError(t, err)
			d.now = func() time.Time { return fixed }

			pub.On("PublishWithContext", mock.Anything, "ex.test", tt.wantKey, mock.MatchedBy(func(p amqp.Publishing) bool {
				return p.Expiration == tt.wantExpiration &&
					string(p.Body) == "some" &&
					p.MessageId == "msg-1" &&
					p.DeliveryMode == amqp.Persistent &&
					p.Timestamp.Equal(fixed)
			})).Return(nil).Once()

			require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), tt.msg, testEntry()))
			pub.AssertExpectations(t)
		})
	}
}

func TestAMQP_PreservesHeaders(t *testing.T) {
	pub := new(MockPublisher)
	d, err := NewAMQP(pub)
	require.NoError(t, err)

	msg := messageWithDeaths(0)
	pub.On("PublishWithContext", mock.Anything, "ex.test", "routing.key.test.retry", mock.MatchedBy(func(p amqp.Publishing) bool {
		_, hasDeath := p.Headers[DeathHeader]
		return hasDeath && p.Headers["tenant"] == "acme" && p.ContentType == "application/json"
	})).Return(nil).Once()

	require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), msg, testEntry()))
	pub.AssertExpectations(t)
}

func TestAMQP_SendToDeadLetterAssignsMissingID(t *testing.T) {
	pub := new(MockPublisher)
	d, err := NewAMQP(pub)
	require.NoError(t, err)

	pub.On("PublishWithContext", mock.Anything, "ex.test", "routing.key.test.dlq", mock.MatchedBy(func(p amqp.Publishing) bool {
		return p.MessageId != "" && p.Expiration == ""
	})).Return(nil).Once()

	require.NoError(t, d.SendToDeadLetter(context.Background(), types.Message{Body: []byte("x")}, testEntry()))
	pub.AssertExpectations(t)
}

func TestAMQP_ZeroMaxAttemptsDeadLettersImmediately(t *testing.T) {
	pub := new(MockPublisher)
	d, err := NewAMQP(pub)
	require.NoError(t, err)

	entry := testEntry()
	entry.MaxRetriesAttempts = 0
	pub.On("PublishWithContext", mock.Anything, "ex.test", "routing.key.test.dlq", mock.Anything).Return(nil).Once()

	require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), types.Message{ID: "m"}, entry))
	pub.AssertExpectations(t)
}

func TestAMQP_PublishErrorIsWrapped(t *testing.T) {
	pub := new(MockPublisher)
	d, err := NewAMQP(pub)
	require.NoError(t, err)

	boom := errors.New("channel closed")
	pub.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(boom)

	err = d.SendToRetryOrDeadLetter(context.Background(), types.Message{ID: "m"}, testEntry())
	assert.ErrorIs(t, err, boom)

	err = d.SendToDeadLetter(context.Background(), types.Message{ID: "m"}, testEntry())
	assert.ErrorIs(t, err, boom)
}

func TestDeathCount(t *testing.T) {
	assert.Equal(t, 0, DeathCount(nil))
	assert.Equal(t, 0, DeathCount(map[string]any{DeathHeader: "garbage"}))
	assert.Equal(t, 3, DeathCount(messageWithDeaths(1, 2).Headers))
	assert.Equal(t, 4, DeathCount(map[string]any{DeathHeader: []any{
		map[string]any{"count": 4},
		"not-a-table",
	}}))
}

func TestAMQP_DefaultExchangeUsesQueueNames(t *testing.T) {
	pub := new(MockPublisher)
	d, err := NewAMQP(pub)
	require.NoError(t, err)

	entry := testEntry()
	entry.Exchange = ""
	pub.On("PublishWithContext", mock.Anything, "", "queue.test.retry", mock.Anything).Return(nil).Once()
	pub.On("PublishWithContext", mock.Anything, "", "queue.test.dlq", mock.Anything).Return(nil).Once()

	require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), types.Message{ID: "m"}, entry))
	require.NoError(t, d.SendToDeadLetter(context.Background(), types.Message{ID: "m"}, entry))
	pub.AssertExpectations(t)
}

func TestAMQP_MissingTargets(t *testing.T) {
	pub := new(MockPublisher)
	d, err := NewAMQP(pub)
	require.NoError(t, err)

	entry := config.Entry{Name: "sqs-only"}
	assert.ErrorIs(t, d.SendToRetryOrDeadLetter(context.Background(), types.Message{}, entry), ErrMissingRetryTarget)
	assert.ErrorIs(t, d.SendToDeadLetter(context.Background(), types.Message{}, entry), ErrMissingDeadLetterTarget)
	pub.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
