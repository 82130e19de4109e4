package retrydlq

import (
	"fmt"

	"github.com/hatsunemiku3939/retrydlq/policy"
	"github.com/hatsunemiku3939/retrydlq/types"
)

var (
	ErrConfigurationMissing = types.ErrConfigurationMissing
	ErrPublish              = types.ErrPublish
	ErrInvalidPolicy        = types.ErrInvalidPolicy
	ErrNilDependency        = types.ErrNilDependency
)

// PublishError reports a failed hand-off to the Retry Dispatcher.
// It matches ErrPublish with errors.Is and unwraps to the dispatcher error.
type PublishError struct {
	Handler   types.HandlerKey
	EventName string
	Kind      string
	MessageID string
	Outcome   policy.Outcome
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed for event %s (handler %s, message %s, failure %s): %v",
		e.Outcome, e.EventName, e.Handler, e.MessageID, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPublish.
func (e *PublishError) Is(target error) bool { return target == ErrPublish }
