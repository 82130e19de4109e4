package retrydlq

import (
	"context"
	"fmt"

	"github.com/hatsunemiku3939/retrydlq/policy/failure"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// Guard wraps next so that its failures are handled by the engine under the
// policy registered for key. A panic in next is recovered as a failure.Panic.
//
// The returned handler yields nil once a failure has been absorbed, and an
// error only when the engine itself could not act on the message.
func (e *Engine) Guard(key types.HandlerKey, next Handler) Handler {
	return func(ctx context.Context, msg types.Message) error {
		herr := invoke(ctx, next, msg)
		if herr == nil {
			return nil
		}
		_, err := e.HandleFailure(ctx, key, herr, msg)
		return err
	}
}

// Middleware returns Guard for key as a Middleware.
func (e *Engine) Middleware(key types.HandlerKey) Middleware {
	return func(next Handler) Handler { return e.Guard(key, next) }
}

// Chain applies middlewares to h. The first middleware is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

func invoke(ctx context.Context, next Handler, msg types.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failure.Wrap(failure.Panic, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return next(ctx, msg)
}
