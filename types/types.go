package types

import (
	"errors"
	"strconv"
)

var (
	// ErrConfigurationMissing marks a handler without a policy or an event without configuration.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrPublish marks a failed publish to a retry or dead-letter destination.
	ErrPublish = errors.New("publish failed")
	// ErrInvalidPolicy marks a policy declaration that cannot be registered.
	ErrInvalidPolicy = errors.New("invalid policy")
	// ErrNilDependency marks a constructor called without a required collaborator.
	ErrNilDependency = errors.New("nil dependency")
)

// HandlerKey is the unique identifier of a guarded handler (e.g., "orders.created").
type HandlerKey string

// Message is the transport-neutral view of a consumed message.
// Headers carry broker metadata such as x-death or SQS message attributes.
type Message struct {
	ID          string
	Body        []byte
	ContentType string
	Headers     map[string]any
}

// Header returns the header value for key, or nil.
func (m Message) Header(key string) any {
	if m.Headers == nil {
		return nil
	}
	return m.Headers[key]
}

// IntHeader returns the header value for key as an int.
// Integer types and decimal strings are accepted; anything else yields 0.
func (m Message) IntHeader(key string) int {
	switch v := m.Header(key).(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// CloneHeaders returns a shallow copy of the message headers.
func (m Message) CloneHeaders() map[string]any {
	out := make(map[string]any, len(m.Headers))
	for k, v := range m.Headers {
		out[k] = v
	}
	return out
}
