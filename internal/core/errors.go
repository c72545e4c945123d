package core

import "errors"

// Error codes for realtime errors.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal"
)

var (
	// ErrAccessDenied is returned when a subscribe targets a room the user is not a member of.
	ErrAccessDenied = errors.New("access denied for room")
	// ErrHubClosed is returned when the hub has stopped.
	ErrHubClosed = errors.New("hub closed")
	// ErrSendQueueFull is returned when a subscribe cannot be acknowledged
	// because the connection's queue is full. The previous binding is kept.
	ErrSendQueueFull = errors.New("send queue full")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// Realtime error replies. The message text is what clients see.
var (
	ErrInvalidPayload    = coreError(ErrCodeBadRequest, "Invalid message payload")
	ErrUnsupportedEvent  = coreError(ErrCodeBadRequest, "Unsupported event")
	ErrRoomAccessDenied  = coreError(ErrCodeForbidden, "Access denied for room")
	ErrSubscribeFailed   = coreError(ErrCodeInternal, "Unable to subscribe to room")
	ErrFrameRateExceeded = coreError(ErrCodeRateLimited, "Rate limit exceeded")
)

// SubscribeError maps an error returned by Hub.Subscribe to the reply sent to the client.
func SubscribeError(err error) *CoreError {
	if errors.Is(err, ErrAccessDenied) {
		return ErrRoomAccessDenied
	}
	return ErrSubscribeFailed
}
