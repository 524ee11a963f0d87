// Package handlers defines the stable, snake_case error codes returned in
// ErrorResponse.Code. Clients branch on the code, not on the message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeValidation       = "validation_failed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "service_unavailable"

	// Channels and bridge.
	ErrCodeChannelDisabled    = "channel_disabled"
	ErrCodeUnsupportedChannel = "unsupported_channel"
	ErrCodeInvalidEnvelope    = "invalid_envelope"
	ErrCodeVerificationFailed = "verification_failed"
	ErrCodeInboundFailed      = "inbound_failed"
	ErrCodeOutboxFailed       = "outbox_failed"
	ErrCodeNotClaimed         = "not_claimed"

	// Linking.
	ErrCodeInvalidUserID         = "invalid_user_id"
	ErrCodeInvalidOrExpiredToken = "invalid_or_expired_token"

	// Tools and idempotency.
	ErrCodeUnknownTool         = "unknown_tool"
	ErrCodeInvalidArguments    = "invalid_arguments"
	ErrCodeToolFailed          = "tool_failed"
	ErrCodeIdempotencyConflict = "idempotency_conflict"

	// Admin.
	ErrCodeNotRequeueable = "not_requeueable"
)
