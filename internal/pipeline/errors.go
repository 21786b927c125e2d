package pipeline

import (
	"context"
	"errors"

	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/generation"
	"github.com/kestrelworks/sitegen-api/internal/redact"
	"github.com/kestrelworks/sitegen-api/internal/transcription"
)

// ErrTranscriptionTimeout is returned when the provider-side transcription
// job does not reach a terminal state within the bounded attempt count.
var ErrTranscriptionTimeout = errors.New("transcription polling timed out")

// classify maps a stage failure into the client-facing error taxonomy. The
// message is redacted; full detail stays in the server logs.
func classify(err error) *domain.JobError {
	kind := domain.ErrorKindInternal
	message := "content generation failed"

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrTextTooShort),
		errors.Is(err, domain.ErrTextTooLong),
		errors.Is(err, domain.ErrEmptyAudio),
		errors.Is(err, domain.ErrAudioTooLarge),
		errors.Is(err, transcription.ErrFormatUnsupported),
		errors.Is(err, transcription.ErrSizeExceeded):
		kind = domain.ErrorKindValidation
		message = redact.Error(err)

	case errors.Is(err, ErrTranscriptionTimeout),
		errors.Is(err, context.DeadlineExceeded):
		kind = domain.ErrorKindTimeout
		message = "the operation timed out, please retry"

	case errors.Is(err, generation.ErrUnavailable),
		errors.Is(err, transcription.ErrUnavailable):
		kind = domain.ErrorKindUnavailable
		message = "an upstream service is unavailable, please retry later"

	case errors.Is(err, context.Canceled):
		kind = domain.ErrorKindCancelled
		message = "the operation was cancelled"
	}

	return &domain.JobError{Kind: kind, Message: message}
}
