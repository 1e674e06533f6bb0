// Package errors provides standardized error codes for the chat bridge.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for the chat bridge.
type ErrorCode string

// Categories: AUTH, CONN, PROTO, INT.
const (
	// Internal errors.
	CHT_INT_UNKNOWN ErrorCode = "CHT_INT_001" // Unknown internal error
	CHT_INT_STOPPED ErrorCode = "CHT_INT_002" // Manager is not running

	// Authentication errors.
	CHT_AUTH_REQUIRED       ErrorCode = "CHT_AUTH_001" // No credential available
	CHT_AUTH_REFRESH_FAILED ErrorCode = "CHT_AUTH_002" // Credential refresh rejected or failed
	CHT_AUTH_REJECTED       ErrorCode = "CHT_AUTH_003" // Server closed the socket for an auth reason

	// Connection errors.
	CHT_CONN_CONSTRUCT     ErrorCode = "CHT_CONN_001" // Socket could not be constructed
	CHT_CONN_TRANSPORT     ErrorCode = "CHT_CONN_002" // Transport reported an error
	CHT_CONN_MAX_RECONNECT ErrorCode = "CHT_CONN_003" // Reconnect budget exhausted
	CHT_CONN_SEND          ErrorCode = "CHT_CONN_004" // Write to the socket failed

	// Protocol errors.
	CHT_PROTO_PARSE   ErrorCode = "CHT_PROTO_001" // Inbound frame could not be decoded
	CHT_PROTO_MARSHAL ErrorCode = "CHT_PROTO_002" // Outbound payload could not be encoded
)

// ErrorInfo contains detailed information about an error.
type ErrorInfo struct {
	Code        ErrorCode   `json:"code"`
	Message     string      `json:"message"`
	Details     interface{} `json:"details,omitempty"`
	Recoverable bool        `json:"recoverable"`
	Terminal    bool        `json:"terminal"`
}

// errorDefinitions maps error codes to their definitions.
var errorDefinitions = map[ErrorCode]ErrorInfo{
	CHT_INT_UNKNOWN: {
		Code:    CHT_INT_UNKNOWN,
		Message: "An unknown internal error occurred",
	},
	CHT_INT_STOPPED: {
		Code:    CHT_INT_STOPPED,
		Message: "Connection manager is not running",
	},

	CHT_AUTH_REQUIRED: {
		Code:     CHT_AUTH_REQUIRED,
		Message:  "Authentication required",
		Terminal: true,
	},
	CHT_AUTH_REFRESH_FAILED: {
		Code:     CHT_AUTH_REFRESH_FAILED,
		Message:  "Credential refresh failed",
		Terminal: true,
	},
	CHT_AUTH_REJECTED: {
		Code:        CHT_AUTH_REJECTED,
		Message:     "Server rejected the credential",
		Recoverable: true,
	},

	CHT_CONN_CONSTRUCT: {
		Code:     CHT_CONN_CONSTRUCT,
		Message:  "Failed to construct socket",
		Terminal: true,
	},
	CHT_CONN_TRANSPORT: {
		Code:        CHT_CONN_TRANSPORT,
		Message:     "WebSocket connection error",
		Recoverable: true,
	},
	CHT_CONN_MAX_RECONNECT: {
		Code:     CHT_CONN_MAX_RECONNECT,
		Message:  "Max reconnect attempts reached",
		Terminal: true,
	},
	CHT_CONN_SEND: {
		Code:        CHT_CONN_SEND,
		Message:     "Failed to write to socket",
		Recoverable: true,
	},

	CHT_PROTO_PARSE: {
		Code:        CHT_PROTO_PARSE,
		Message:     "Failed to parse message",
		Recoverable: true,
	},
	CHT_PROTO_MARSHAL: {
		Code:    CHT_PROTO_MARSHAL,
		Message: "Failed to encode message",
	},
}

// GetErrorInfo returns the error information for a given error code.
func GetErrorInfo(code ErrorCode) (ErrorInfo, bool) {
	info, exists := errorDefinitions[code]

	return info, exists
}

// Error creates a new error with the given code and optional details.
func Error(code ErrorCode, details ...interface{}) error {
	return New(code, nil, details...)
}

// New creates a *BridgeError for code wrapping cause.
func New(code ErrorCode, cause error, details ...interface{}) *BridgeError {
	info, exists := errorDefinitions[code]
	if !exists {
		info = errorDefinitions[CHT_INT_UNKNOWN]
	}

	if len(details) > 0 {
		info.Details = details[0]
	}

	return &BridgeError{
		ErrorInfo: info,
		Cause:     cause,
	}
}

// BridgeError represents a chat bridge error.
type BridgeError struct {
	ErrorInfo
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Details)
	}

	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// HasCode checks if the error matches the given code.
func (e *BridgeError) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// WithDetails returns a new error with additional details.
func (e *BridgeError) WithDetails(details interface{}) *BridgeError {
	newErr := *e
	newErr.Details = details

	return &newErr
}

// IsErrorCode checks if an error is a BridgeError with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.HasCode(code)
	}

	return false
}

// CodeOf returns the code carried by err, or CHT_INT_UNKNOWN.
func CodeOf(err error) ErrorCode {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Code
	}

	return CHT_INT_UNKNOWN
}

// IsRetryable reports whether err carries a recoverable code.
func IsRetryable(err error) bool {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Recoverable
	}

	return false
}

// IsTerminal reports whether err requires the host to re-authenticate or give up.
func IsTerminal(err error) bool {
	var bridgeErr *BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Terminal
	}

	return false
}
