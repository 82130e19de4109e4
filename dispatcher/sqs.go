package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/hatsunemiku3939/retrydlq/config"
	"github.com/hatsunemiku3939/retrydlq/types"
)

const (
	// RetryCountAttribute carries the number of retries already scheduled for a message.
	RetryCountAttribute = "x-retry-count"
	// maxSQSDelay is the largest DelaySeconds SQS accepts.
	maxSQSDelay = 15 * time.Minute
	// maxSQSAttributes is the number of message attributes SQS accepts per message.
	maxSQSAttributes = 10
)

// SQSClient defines the SQS operations needed by the SQS dispatcher.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS sends failed messages to SQS retry and dead-letter queues.
// Retries use DelaySeconds, so the effective delay is capped at 15 minutes.
type SQS struct {
	client SQSClient
}

// NewSQS creates an SQS dispatcher.
func NewSQS(client SQSClient) (*SQS, error) {
	if client == nil {
		return nil, fmt.Errorf("sqs dispatcher: %w", ErrNilClient)
	}
	return &SQS{client: client}, nil
}

// SendToRetryOrDeadLetter sends msg to the retry queue with a delay, or to the
// dead-letter queue once its retry count reached entry.MaxRetriesAttempts.
func (d *SQS) SendToRetryOrDeadLetter(ctx context.Context, msg types.Message, entry config.Entry) error {
	attempts := msg.IntHeader(RetryCountAttribute)
	if attempts >= entry.MaxRetriesAttempts {
		return d.SendToDeadLetter(ctx, msg, entry)
	}

	queueURL := entry.SQS.RetryQueueURL
	if queueURL == "" {
		queueURL = entry.SQS.QueueURL
	}
	if queueURL == "" {
		return fmt.Errorf("event %s: %w", entry.Name, ErrMissingRetryTarget)
	}

	delay := min(entry.RetryDelay(attempts), maxSQSDelay)
	attrs := messageAttributes(msg, attempts+1)

	_, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		DelaySeconds:      int32(delay / time.Second),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("send to retry queue %s: %w", queueURL, err)
	}
	return nil
}

// SendToDeadLetter sends msg to the dead-letter queue.
func (d *SQS) SendToDeadLetter(ctx context.Context, msg types.Message, entry config.Entry) error {
	queueURL := entry.SQS.DeadLetterQueueURL
	if queueURL == "" {
		return fmt.Errorf("event %s: %w", entry.Name, ErrMissingDeadLetterTarget)
	}

	_, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: messageAttributes(msg, msg.IntHeader(RetryCountAttribute)),
	})
	if err != nil {
		return fmt.Errorf("send to dead letter queue %s: %w", queueURL, err)
	}
	return nil
}

// messageAttributes carries the string headers of msg over and sets the retry count.
// Headers beyond the SQS attribute limit are dropped in key order.
func messageAttributes(msg types.Message, retryCount int) map[string]sqstypes.MessageAttributeValue {
	attrs := map[string]sqstypes.MessageAttributeValue{
		RetryCountAttribute: {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(retryCount)),
		},
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		if k != RetryCountAttribute {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if len(attrs) >= maxSQSAttributes {
			break
		}
		v, ok := msg.Headers[k].(string)
		if !ok || v == "" {
			continue
		}
		attrs[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return attrs
}
