package av

import "errors"

// Sentinel errors for av package operations.
// These errors enable reliable error classification using errors.Is().

// Track admission errors.
var (
	// ErrInvalidClockRate indicates a track clock rate that is not positive.
	ErrInvalidClockRate = errors.New("invalid clock rate")

	// ErrNoUsableSSRC indicates the track description carries no primary source identifier.
	ErrNoUsableSSRC = errors.New("no usable ssrc")

	// ErrInvalidMediaKind indicates a media kind other than audio or video.
	ErrInvalidMediaKind = errors.New("invalid media kind")

	// ErrUnsupportedCodec indicates a primary codec the ingest path cannot depacketize.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrInvalidConfig indicates a configuration value outside its allowed range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Runtime errors.
var (
	// ErrUnknownSSRC indicates a keyframe request for a source the track does not own.
	ErrUnknownSSRC = errors.New("unknown ssrc")

	// ErrPublisherClosed indicates an operation on a closed publisher.
	ErrPublisherClosed = errors.New("publisher closed")
)
