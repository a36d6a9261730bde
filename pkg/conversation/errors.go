package conversation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conversation package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("conversation: API key is required")

	// ErrMissingConfigID indicates the session template id was not provided.
	ErrMissingConfigID = errors.New("conversation: config ID is required")

	// ErrMissingSecretKey indicates access tokens were requested without a
	// secret key.
	ErrMissingSecretKey = errors.New("conversation: secret key is required for access tokens")

	// ErrAuthFailed indicates the service rejected the credentials.
	ErrAuthFailed = errors.New("conversation: authentication failed")

	// ErrNotConnected indicates the session is closed or was never opened.
	ErrNotConnected = errors.New("conversation: not connected")

	// ErrSendFailed indicates writing a frame failed.
	ErrSendFailed = errors.New("conversation: send failed")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("conversation: invalid message")
)

// ConnectionError represents a WebSocket connection error.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// StatusCode is the HTTP status of a failed handshake, if any.
	StatusCode int

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("conversation: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("conversation: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if reconnection should be attempted.
func (e *ConnectionError) IsRetryable() bool {
	return e.Retryable
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error checking helpers.

// IsConfigError returns true for missing credentials or session template.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrMissingConfigID)
}

// IsAuthError returns true if the service rejected the handshake.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsTransportError returns true for dropped or failed connections.
func IsTransportError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.IsRetryable()
	}
	return false
}
