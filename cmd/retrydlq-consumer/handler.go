package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hatsunemiku3939/retrydlq/pkg/jsonschema"
	"github.com/hatsunemiku3939/retrydlq/policy"
	"github.com/hatsunemiku3939/retrydlq/policy/failure"
	"github.com/hatsunemiku3939/retrydlq/types"
)

// userProfileHandlerKey identifies the user profile handler policy.
const userProfileHandlerKey types.HandlerKey = "user-profile.update"

// --- Failure kinds ---

var (
	kindMalformed      = failure.NewKind("malformed-payload", nil)
	kindInvalidPayload = failure.NewKind("invalid-payload", nil)
	kindTimeout        = failure.NewKind("timeout", nil)
)

var userProfileSchema = jsonschema.MustCompile(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "userId": { "type": "string" },
    "username": { "type": "string" },
    "email": { "type": "string", "format": "email" }
  },
  "required": ["userId", "username", "email"]
}`)

// UserProfileMessage defines the structure for the user profile update payload.
type UserProfileMessage struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// userProfilePolicy drops unparseable payloads, dead-letters schema violations
// and retries timeouts and panics. Any other failure matches no bucket and is
// discarded as unclassified.
func userProfilePolicy(eventName string) (*policy.Policy, error) {
	return policy.New(eventName,
		policy.DiscardWhen(kindMalformed),
		policy.DeadLetterWhen(kindInvalidPayload),
		policy.RetryWhen(kindTimeout, failure.Panic),
	)
}

// updateUserProfile handles the logic for updating a user profile.
func updateUserProfile(ctx context.Context, msg types.Message) error {
	if err := userProfileSchema.Validate(msg.Body); err != nil {
		if errors.Is(err, jsonschema.ErrSchemaValidationSystem) {
			return failure.Wrap(kindMalformed, err)
		}
		return failure.Wrap(kindInvalidPayload, err)
	}

	var profile UserProfileMessage
	if err := json.Unmarshal(msg.Body, &profile); err != nil {
		return failure.Wrap(kindMalformed, fmt.Errorf("failed to unmarshal user profile message: %w", err))
	}

	slog.Debug("processing user update", "user_id", profile.UserID, "username", profile.Username)

	// Simulate work that can be canceled.
	select {
	case <-time.After(200 * time.Millisecond):
		slog.Info("finished processing user update", "user_id", profile.UserID)
		return nil
	case <-ctx.Done():
		return failure.Wrap(kindTimeout, ctx.Err())
	}
}
