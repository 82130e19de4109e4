package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/hatsunemiku3939/retrydlq"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// --- SQS Consumer Configuration ---
const (
	// maxMessages defines the maximum number of messages to retrieve in one SQS API call.
	maxMessages = 5
	// waitTimeSeconds enables SQS Long Polling, reducing cost and empty responses.
	waitTimeSeconds = 10
	// deleteTimeout sets a client-side timeout for the DeleteMessage API call.
	deleteTimeout = 5 * time.Second
	// processingTimeout sets a deadline for processing a single message.
	// This should be less than the container's graceful shutdown period.
	processingTimeout = 30 * time.Second
	// receiveRetryDelay is the pause after a failed ReceiveMessage call.
	receiveRetryDelay = 2 * time.Second

	// ReceiveCountHeader carries the SQS ApproximateReceiveCount of a message.
	ReceiveCountHeader = "x-receive-count"
)

// SQSClient defines the interface for SQS operations needed by the Consumer.
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQS encapsulates the SQS polling and message processing logic.
//
// A message is deleted once the handler returns nil. Any error leaves it on the
// queue so SQS redelivers it after the visibility timeout.
type SQS struct {
	client   SQSClient
	queueURL string
	handler  retrydlq.Handler
	logger   retrydlq.Logger

	processingTimeout time.Duration
}

// Option configures a consumer.
type Option func(*options)

type options struct {
	logger            retrydlq.Logger
	processingTimeout time.Duration
}

// WithLogger sets the consumer logger.
func WithLogger(l retrydlq.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProcessingTimeout overrides the per-message processing deadline.
func WithProcessingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.processingTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: retrydlq.NopLogger{}, processingTimeout: processingTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewSQS creates a new SQS message consumer.
func NewSQS(client SQSClient, queueURL string, handler retrydlq.Handler, opts ...Option) (*SQS, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("%w: sqs client", retrydlq.ErrNilDependency)
	case handler == nil:
		return nil, fmt.Errorf("%w: handler", retrydlq.ErrNilDependency)
	case queueURL == "":
		return nil, errors.New("sqs consumer: queue url is required")
	}
	o := buildOptions(opts)
	return &SQS{
		client:            client,
		queueURL:          queueURL,
		handler:           handler,
		logger:            o.logger,
		processingTimeout: o.processingTimeout,
	}, nil
}

// Start begins the consumer's polling loop. It blocks until the context is canceled
// and all in-flight messages are processed.
func (c *SQS) Start(ctx context.Context) {
	c.logger.Info("sqs consumer started", "queue_url", c.queueURL)
	var wg sync.WaitGroup

	for {
		if ctx.Err() != nil {
			c.logger.Info("shutdown initiated, no longer polling for new messages")
			break
		}

		output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(c.queueURL),
			MaxNumberOfMessages:         maxMessages,
			WaitTimeSeconds:             waitTimeSeconds,
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.logger.Info("context canceled, stopping poller")
				break
			}
			c.logger.Error("failed to receive messages", "queue_url", c.queueURL, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(receiveRetryDelay):
			}
			continue
		}

		if len(output.Messages) == 0 {
			continue
		}
		c.logger.Debug("received messages", "count", len(output.Messages))

		for _, msg := range output.Messages {
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				msgCtx, cancel := context.WithTimeout(context.Background(), c.processingTimeout)
				defer cancel()
				c.processMessage(msgCtx, &m)
			}(msg)
		}
	}

	c.logger.Info("waiting for in-flight messages to be processed")
	wg.Wait()
	c.logger.Info("graceful shutdown complete")
}

// processMessage runs the handler for a single SQS message and deletes it on success.
func (c *SQS) processMessage(ctx context.Context, msg *sqstypes.Message) {
	if msg.Body == nil {
		c.logger.Error("received message with empty body", "message_id", aws.ToString(msg.MessageId))
		return
	}

	m := FromSQS(msg)
	if err := c.handler(ctx, m); err != nil {
		c.logger.Error("message left for redelivery", "message_id", m.ID, "error", err)
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()

	_, err := c.client.DeleteMessage(deleteCtx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.Error("failed to delete message", "message_id", m.ID, "error", err)
		return
	}
	c.logger.Debug("deleted message", "message_id", m.ID)
}

// FromSQS converts an SQS message into a transport-neutral Message.
// String and Number message attributes become headers.
func FromSQS(msg *sqstypes.Message) types.Message {
	headers := make(map[string]any, len(msg.MessageAttributes)+1)
	for k, v := range msg.MessageAttributes {
		if v.StringValue != nil {
			headers[k] = aws.ToString(v.StringValue)
		}
	}
	if rc, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		headers[ReceiveCountHeader] = rc
	}

	var contentType string
	if ct, ok := headers["content-type"].(string); ok {
		contentType = ct
	}

	return types.Message{
		ID:          aws.ToString(msg.MessageId),
		Body:        []byte(aws.ToString(msg.Body)),
		ContentType: contentType,
		Headers:     headers,
	}
}
