package api

import (
	"errors"
	"net/http"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrTextTooShort),
		errors.Is(err, domain.ErrTextTooLong),
		errors.Is(err, domain.ErrEmptyAudio),
		errors.Is(err, domain.ErrAudioTooLarge):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrNotJobOwner):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrJobTerminal):
		return http.StatusConflict

	case errors.Is(err, domain.ErrTooManyJobs):
		return http.StatusTooManyRequests

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for the error. Validation
// errors carry useful detail and pass through; everything else is replaced
// with a generic message.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, domain.ErrTextTooShort),
		errors.Is(err, domain.ErrTextTooLong),
		errors.Is(err, domain.ErrEmptyAudio),
		errors.Is(err, domain.ErrAudioTooLarge),
		errors.Is(err, domain.ErrValidation):
		return err.Error()

	case errors.Is(err, domain.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, domain.ErrNotJobOwner):
		return "You do not own this job"

	case errors.Is(err, domain.ErrJobTerminal):
		return "Job has already finished"

	case errors.Is(err, domain.ErrTooManyJobs):
		return "Too many jobs in flight, retry later"

	default:
		return "An unexpected error occurred"
	}
}
