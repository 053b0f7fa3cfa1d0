package rtcingest

import "errors"

var (
	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrDuplicateSSRC indicates a track whose source identifier is already routed.
	ErrDuplicateSSRC = errors.New("ssrc already published")

	// ErrTrackNotFound indicates no publisher owns the source identifier.
	ErrTrackNotFound = errors.New("track not found")
)
