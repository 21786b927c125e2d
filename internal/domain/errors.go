// Package domain defines the core entities and errors of the content
// generation pipeline.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when submitted input fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrTextTooShort is returned when the submitted text is below the minimum length.
	ErrTextTooShort = errors.New("text is too short")

	// ErrTextTooLong is returned when the submitted text exceeds the maximum length.
	ErrTextTooLong = errors.New("text is too long")

	// ErrEmptyAudio is returned when an audio submission carries no bytes.
	ErrEmptyAudio = errors.New("audio data cannot be empty")

	// ErrAudioTooLarge is returned when the audio payload exceeds the size limit.
	ErrAudioTooLarge = errors.New("audio data exceeds size limit")

	// ErrJobNotFound is returned when no tracker exists for a request id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when an operation targets a job that already
	// reached a terminal state.
	ErrJobTerminal = errors.New("job is already in a terminal state")

	// ErrNotJobOwner is returned when a caller acts on a job it does not own.
	ErrNotJobOwner = errors.New("caller does not own this job")

	// ErrTooManyJobs is returned when the in-flight job cap is reached.
	ErrTooManyJobs = errors.New("too many jobs in flight")
)

// ErrorKind classifies a job failure for clients deciding whether to retry.
type ErrorKind string

// Possible error kinds
const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindUnavailable ErrorKind = "upstream_unavailable"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindInternal    ErrorKind = "internal"
	ErrorKindCancelled   ErrorKind = "cancelled"
)

// JobError is the redacted failure description attached to a job in the
// error state. It never carries internal stack detail.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	return string(e.Kind) + ": " + e.Message
}
