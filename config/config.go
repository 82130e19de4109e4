package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/hatsunemiku3939/retrydlq/types"
)

const (
	defaultExchangeType = "topic"
	defaultAMQPPort     = 5672
	defaultRetryTTL     = 5 * time.Second
	defaultTTLMultiply  = 1

	// MaxRetryDelay caps the delay computed by RetryDelay.
	MaxRetryDelay = 24 * time.Hour

	retrySuffix      = ".retry"
	deadLetterSuffix = ".dlq"
)

var (
	ErrInvalidConfig  = errors.New("invalid retry configuration")
	ErrDuplicateEvent = errors.New("duplicate event configuration")
)

// Entry holds the topology and connection settings of one event.
type Entry struct {
	Name               string        `yaml:"name"                 json:"name"`
	Queue              string        `yaml:"queue"                json:"queue"`
	Exchange           string        `yaml:"exchange"             json:"exchange"`
	ExchangeType       string        `yaml:"exchange_type"        json:"exchange_type"`
	RoutingKey         string        `yaml:"routing_key"          json:"routing_key"`
	RetryTTL           time.Duration `yaml:"retry_ttl"            json:"retry_ttl"`
	TTLMultiply        float64       `yaml:"ttl_multiply"         json:"ttl_multiply"`
	MaxRetriesAttempts int           `yaml:"max_retries_attempts" json:"max_retries_attempts"`
	Primary            bool          `yaml:"primary"              json:"primary"`
	Connection         Connection    `yaml:"connection"           json:"connection"`
	SQS                SQSQueues     `yaml:"sqs"                  json:"sqs"`
}

// Connection holds broker connection parameters.
type Connection struct {
	Host        string `yaml:"host"         json:"host"`
	Port        int    `yaml:"port"         json:"port"`
	VirtualHost string `yaml:"virtual_host" json:"virtual_host"`
	Username    string `yaml:"username"     json:"username"`
	Password    string `yaml:"password"     json:"password"`
	SSL         bool   `yaml:"ssl"          json:"ssl"`
}

// SQSQueues holds the queue URLs used when the event is carried over SQS.
type SQSQueues struct {
	QueueURL           string `yaml:"queue_url"             json:"queue_url"`
	RetryQueueURL      string `yaml:"retry_queue_url"       json:"retry_queue_url"`
	DeadLetterQueueURL string `yaml:"dead_letter_queue_url" json:"dead_letter_queue_url"`
}

// UnmarshalYAML reads retry_ttl either as a duration string ("5s") or as an
// integer number of milliseconds.
func (e *Entry) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Entry
	if err := unmarshal((*plain)(e)); err != nil {
		return err
	}
	var raw struct {
		RetryTTL any `yaml:"retry_ttl"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.RetryTTL.(type) {
	case int:
		e.RetryTTL = time.Duration(v) * time.Millisecond
	case int64:
		e.RetryTTL = time.Duration(v) * time.Millisecond
	case uint64:
		e.RetryTTL = time.Duration(v) * time.Millisecond
	case float64:
		e.RetryTTL = time.Duration(v * float64(time.Millisecond))
	}
	return nil
}

func (e Entry) withDefaults() Entry {
	if e.ExchangeType == "" {
		e.ExchangeType = defaultExchangeType
	}
	if e.RetryTTL <= 0 {
		e.RetryTTL = defaultRetryTTL
	}
	if e.TTLMultiply <= 0 {
		e.TTLMultiply = defaultTTLMultiply
	}
	if e.Connection.Port == 0 {
		e.Connection.Port = defaultAMQPPort
	}
	if e.SQS.RetryQueueURL == "" {
		e.SQS.RetryQueueURL = e.SQS.QueueURL
	}
	return e
}

// SupportedExchangeType reports whether kind routes by key, which keeps the work,
// retry and dead-letter queues apart. An empty kind means the default.
func SupportedExchangeType(kind string) bool {
	switch kind {
	case "", "direct", "topic":
		return true
	default:
		return false
	}
}

// RoutingBase is the routing key the work queue is bound with: RoutingKey, or Queue
// when unset. Without an exchange, messages go through the default exchange, which
// routes by queue name, so RoutingBase is always Queue.
func (e Entry) RoutingBase() string {
	if e.Exchange != "" && e.RoutingKey != "" {
		return e.RoutingKey
	}
	return e.Queue
}

// RetryRoutingKey is the routing key of the delayed retry queue.
func (e Entry) RetryRoutingKey() string { return e.RoutingBase() + retrySuffix }

// DeadLetterRoutingKey is the routing key of the dead-letter queue.
func (e Entry) DeadLetterRoutingKey() string { return e.RoutingBase() + deadLetterSuffix }

// RetryQueue is the name of the delayed retry queue.
func (e Entry) RetryQueue() string { return e.Queue + retrySuffix }

// DeadLetterQueue is the name of the dead-letter queue.
func (e Entry) DeadLetterQueue() string { return e.Queue + deadLetterSuffix }

// RetryDelay returns the delay before the given retry attempt (zero based):
// RetryTTL * TTLMultiply^attempt, capped at MaxRetryDelay.
func (e Entry) RetryDelay(attempt int) time.Duration {
	ttl := e.RetryTTL
	if ttl <= 0 {
		ttl = defaultRetryTTL
	}
	if attempt <= 0 || e.TTLMultiply <= 1 {
		return min(ttl, MaxRetryDelay)
	}
	d := float64(ttl) * math.Pow(e.TTLMultiply, float64(attempt))
	if math.IsInf(d, 0) || d >= float64(MaxRetryDelay) {
		return MaxRetryDelay
	}
	return time.Duration(d)
}

// AMQPURL builds the broker URL from the connection parameters.
func (e Entry) AMQPURL() string {
	c := e.Connection
	scheme := "amqp"
	if c.SSL {
		scheme = "amqps"
	}
	port := c.Port
	if port == 0 {
		port = defaultAMQPPort
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.VirtualHost,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

// Registry resolves event names to their configuration entries.
// It is immutable after construction.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry builds a Registry, applying defaults to each entry.
// Every entry needs a unique, non-empty name.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidConfig, i)
		}
		if e.MaxRetriesAttempts < 0 {
			return nil, fmt.Errorf("%w: %s: max_retries_attempts must not be negative", ErrInvalidConfig, e.Name)
		}
		if e.TTLMultiply != 0 && e.TTLMultiply < 1 {
			return nil, fmt.Errorf("%w: %s: ttl_multiply must be 0 (unset) or at least 1", ErrInvalidConfig, e.Name)
		}
		if !SupportedExchangeType(e.ExchangeType) {
			return nil, fmt.Errorf("%w: %s: exchange_type %q cannot route retry and dead-letter queues apart",
				ErrInvalidConfig, e.Name, e.ExchangeType)
		}
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, e.Name)
		}
		r.entries[e.Name] = e.withDefaults()
	}
	return r, nil
}

// Resolve returns the entry registered for eventName.
func (r *Registry) Resolve(eventName string) (Entry, error) {
	e, ok := r.entries[eventName]
	if !ok {
		return Entry{}, fmt.Errorf("%w: no configuration for event %s", types.ErrConfigurationMissing, eventName)
	}
	return e, nil
}

// Names returns the configured event names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
