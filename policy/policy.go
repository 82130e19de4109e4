package policy

import (
	"fmt"

	"github.com/hatsunemiku3939/retrydlq/policy/failure"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// MatchMode selects how a failure kind is compared against bucket entries.
type MatchMode int

const (
	// Exact matches a kind only by identity, or when the bucket holds failure.Any.
	Exact MatchMode = iota
	// InheritanceAware matches a kind equal to or descending from a bucket entry.
	InheritanceAware
)

func (m MatchMode) String() string {
	switch m {
	case Exact:
		return "exact"
	case InheritanceAware:
		return "inheritance-aware"
	default:
		return "unknown"
	}
}

// Policy is the failure policy attached to one handler.
// It is immutable after New and safe for concurrent reads.
type Policy struct {
	eventName   string
	mode        MatchMode
	discard     []*failure.Kind
	deadLetter  []*failure.Kind
	retry       []*failure.Kind
	legacyRetry []*failure.Kind
	legacySet   bool
}

// Option configures a Policy at construction time.
type Option func(*Policy)

// WithMatchMode sets the match mode. The default is Exact.
func WithMatchMode(mode MatchMode) Option {
	return func(p *Policy) { p.mode = mode }
}

// DiscardWhen adds kinds whose failures are dropped silently.
func DiscardWhen(kinds ...*failure.Kind) Option {
	return func(p *Policy) { p.discard = appendKinds(p.discard, kinds) }
}

// DeadLetterWhen adds kinds whose failures go straight to the dead-letter destination.
func DeadLetterWhen(kinds ...*failure.Kind) Option {
	return func(p *Policy) { p.deadLetter = appendKinds(p.deadLetter, kinds) }
}

// RetryWhen adds kinds whose failures are retried.
func RetryWhen(kinds ...*failure.Kind) Option {
	return func(p *Policy) { p.retry = appendKinds(p.retry, kinds) }
}

// LegacyRetryWhen replaces the legacy retry bucket.
// The bucket is consulted only when no RetryWhen kinds are declared and
// defaults to failure.Any.
func LegacyRetryWhen(kinds ...*failure.Kind) Option {
	return func(p *Policy) {
		p.legacyRetry = appendKinds(nil, kinds)
		p.legacySet = true
	}
}

func appendKinds(dst, kinds []*failure.Kind) []*failure.Kind {
	for _, k := range kinds {
		if k != nil {
			dst = append(dst, k)
		}
	}
	return dst
}

// New builds a Policy for the given event name.
func New(eventName string, opts ...Option) (*Policy, error) {
	if eventName == "" {
		return nil, fmt.Errorf("%w: event name is required", types.ErrInvalidPolicy)
	}
	p := &Policy{eventName: eventName, mode: Exact}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.mode != Exact && p.mode != InheritanceAware {
		return nil, fmt.Errorf("%w: unknown match mode %d", types.ErrInvalidPolicy, p.mode)
	}
	if !p.legacySet {
		p.legacyRetry = []*failure.Kind{failure.Any}
	}
	return p, nil
}

// MustNew is like New but panics on error. Intended for startup wiring.
func MustNew(eventName string, opts ...Option) *Policy {
	p, err := New(eventName, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// EventName returns the event used to resolve topology configuration.
func (p *Policy) EventName() string { return p.eventName }

// MatchMode returns the policy match mode.
func (p *Policy) MatchMode() MatchMode { return p.mode }

// Discard returns a copy of the discard bucket.
func (p *Policy) Discard() []*failure.Kind { return cloneKinds(p.discard) }

// DeadLetter returns a copy of the direct-to-dead-letter bucket.
func (p *Policy) DeadLetter() []*failure.Kind { return cloneKinds(p.deadLetter) }

// Retry returns a copy of the retry bucket.
func (p *Policy) Retry() []*failure.Kind { return cloneKinds(p.retry) }

// LegacyRetry returns a copy of the legacy retry bucket.
func (p *Policy) LegacyRetry() []*failure.Kind { return cloneKinds(p.legacyRetry) }

func cloneKinds(in []*failure.Kind) []*failure.Kind {
	if len(in) == 0 {
		return nil
	}
	out := make([]*failure.Kind, len(in))
	copy(out, in)
	return out
}
