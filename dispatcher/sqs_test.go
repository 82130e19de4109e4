package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hatsunemiku3939/retrydlq/config"
	"github.com/hatsunemiku3939/retrydlq/types"
)

type MockSQSClient struct{ mock.Mock }

func (m *MockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.SendMessageOutput), args.Error(1)
}

func sqsEntry() config.Entry {
	return config.Entry{
		Name:               "billing",
		RetryTTL:           10 * time.Second,
		TTLMultiply:        3,
		MaxRetriesAttempts: 2,
		SQS: config.SQSQueues{
			QueueURL:           "https://sqs.local/billing",
			DeadLetterQueueURL: "https://sqs.local/billing-dlq",
		},
	}
}

func TestNewSQSRequiresClient(t *testing.T) {
	_, err := NewSQS(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestSQS_SendToRetryOrDeadLetter(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]any
		wantURL   string
		wantDelay int32
		wantCount string
	}{
		{
			name:      "first retry uses source queue and base delay",
			wantURL:   "https://sqs.local/billing",
			wantDelay: 10,
			wantCount: "1",
		},
		{
			name:      "second retry multiplies the delay",
			headers:   map[string]any{RetryCountAttribute: "1"},
			wantURL:   "https://sqs.local/billing",
			wantDelay: 30,
			wantCount: "2",
		},
		{
			name:      "exhausted retries go to the dead letter queue",
			headers:   map[string]any{RetryCountAttribute: "2"},
			wantURL:   "https://sqs.local/billing-dlq",
			wantDelay: 0,
			wantCount: "2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockSQSClient)
			d, err := NewSQS(client)
			require.NoError(t, err)

			client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
				count := in.MessageAttributes[RetryCountAttribute]
				return aws.ToString(in.QueueUrl) == tt.wantURL &&
					in.DelaySeconds == tt.wantDelay &&
					aws.ToString(in.MessageBody) == "payload" &&
					aws.ToString(count.StringValue) == tt.wantCount
			})).Return(&sqs.SendMessageOutput{}, nil).Once()

			msg := types.Message{ID: "m-1", Body: []byte("payload"), Headers: tt.headers}
			require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), msg, sqsEntry()))
			client.AssertExpectations(t)
		})
	}
}

func TestSQS_DelayIsCappedAtFifteenMinutes(t *testing.T) {
	client := new(MockSQSClient)
	d, err := NewSQS(client)
	require.NoError(t, err)

	entry := sqsEntry()
	entry.RetryTTL = time.Hour
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return in.DelaySeconds == 900
	})).Return(&sqs.SendMessageOutput{}, nil).Once()

	require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), types.Message{Body: []byte("payload")}, entry))
	client.AssertExpectations(t)
}

func TestSQS_PrefersRetryQueueURL(t *testing.T) {
	client := new(MockSQSClient)
	d, err := NewSQS(client)
	require.NoError(t, err)

	entry := sqsEntry()
	entry.SQS.RetryQueueURL = "https://sqs.local/billing-retry"
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "https://sqs.local/billing-retry"
	})).Return(&sqs.SendMessageOutput{}, nil).Once()

	require.NoError(t, d.SendToRetryOrDeadLetter(context.Background(), types.Message{Body: []byte("payload")}, entry))
	client.AssertExpectations(t)
}

func TestSQS_MissingTargets(t *testing.T) {
	client := new(MockSQSClient)
	d, err := NewSQS(client)
	require.NoError(t, err)

	entry := sqsEntry()
	entry.SQS = config.SQSQueues{}

	err = d.SendToRetryOrDeadLetter(context.Background(), types.Message{}, entry)
	assert.ErrorIs(t, err, ErrMissingRetryTarget)

	err = d.SendToDeadLetter(context.Background(), types.Message{}, entry)
	assert.ErrorIs(t, err, ErrMissingDeadLetterTarget)
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestSQS_SendErrorIsWrapped(t *testing.T) {
	client := new(MockSQSClient)
	d, err := NewSQS(client)
	require.NoError(t, err)

	boom := errors.New("throttled")
	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, boom)

	err = d.SendToDeadLetter(context.Background(), types.Message{}, sqsEntry())
	assert.ErrorIs(t, err, boom)
}

func TestMessageAttributes(t *testing.T) {
	headers := map[string]any{"tenant": "acme", "empty": "", "number": 3}
	for i := 0; i < 20; i++ {
		headers[fmt.Sprintf("h%02d", i)] = "v"
	}

	attrs := messageAttributes(types.Message{Headers: headers}, 4)
	assert.Len(t, attrs, maxSQSAttributes)
	assert.Equal(t, "4", aws.ToString(attrs[RetryCountAttribute].StringValue))
	assert.Equal(t, "Number", aws.ToString(attrs[RetryCountAttribute].DataType))
	assert.NotContains(t, attrs, "empty")
	assert.NotContains(t, attrs, "number")
	assert.Contains(t, attrs, "h00")
}
