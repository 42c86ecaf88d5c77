package facecapture

import "errors"

var (
	// ErrCaptureUnavailable is returned when the landmark source fails. It ends the session.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrSessionStopped is returned when a stopped session is ticked.
	ErrSessionStopped = errors.New("session stopped")

	// ErrInvalidConfig is returned when session configuration is out of range.
	ErrInvalidConfig = errors.New("invalid session config")
)
