// Package services holds the application layer of the gateway: identity
// linking, the inbound recorder, the outbox, the idempotency cache, the
// orchestrator saga and the background sweeper.
//
// This file centralizes the service-level error values. Translation into
// HTTP status codes happens in the handler layer.
package services

import "errors"

// Identity and linking errors.
var (
	// ErrInvalidUserID is returned when a link completion carries no account.
	ErrInvalidUserID = errors.New("invalid_user_id")

	// ErrInvalidOrExpiredToken covers missing, expired and already consumed
	// link tokens. Callers cannot tell the cases apart on purpose.
	ErrInvalidOrExpiredToken = errors.New("invalid_or_expired_token")

	// ErrIdentityNotFound is returned by moderation calls on an unknown identity.
	ErrIdentityNotFound = errors.New("identity not found")

	ErrInvalidStatus = errors.New("invalid identity status")
)

// Outbox errors.
var (
	// ErrMessageNotFound indicates that no outbound row has the given id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotRequeueable is returned when an operator requeue targets a row
	// that is neither failed nor dead-lettered.
	ErrNotRequeueable = errors.New("message is not failed or dead-lettered")

	// ErrNotClaimed is returned when a bridge settles a row it does not hold:
	// a push-channel row, or one that is not in processing.
	ErrNotClaimed = errors.New("message is not claimed by a bridge")
)

// Idempotency errors.
var (
	// ErrIdempotencyConflict means the key was already used with a different
	// request body.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")

	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
)
