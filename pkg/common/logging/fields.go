// Package logging defines standardized logging field names and logger construction for chat bridge components.
package logging

// StandardFields defines common logging field names for chat bridge components.
const (
	// Service identification.
	FieldService   = "service"
	FieldComponent = "component"
	FieldVersion   = "version"

	// Connection and network.
	FieldChannel    = "channel"
	FieldGeneration = "generation"
	FieldURL        = "url"
	FieldEndpoint   = "endpoint"
	FieldCloseCode  = "close_code"
	FieldReason     = "reason"

	// Request/Response.
	FieldMessageID  = "message_id"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSize       = "size_bytes"
	FieldDelay      = "delay"

	// Session and authentication.
	FieldUserID    = "user_id"
	FieldSenderID  = "sender_id"
	FieldExpiresAt = "expires_at"

	// Error handling.
	FieldError     = "error"
	FieldErrorCode = "error_code"
	FieldAttempt   = "attempt"

	// State.
	FieldState    = "state"
	FieldBuffered = "buffered"
)

// ServiceName identifies the chat bridge in logs and traces.
const ServiceName = "chat-bridge"
