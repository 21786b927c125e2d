package transcription

import "errors"

// Common errors returned by Transcriber implementations.
var (
	// ErrFormatUnsupported is returned when the provider rejects the audio format.
	ErrFormatUnsupported = errors.New("audio format not supported")

	// ErrSizeExceeded is returned when the provider rejects the audio size.
	ErrSizeExceeded = errors.New("audio size exceeds provider limit")

	// ErrUnavailable is returned when the provider is down or overloaded.
	ErrUnavailable = errors.New("transcription service unavailable")
)
