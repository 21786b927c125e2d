package generation

import "errors"

// Common errors returned by Generator implementations.
var (
	// ErrUnavailable is returned when the generation provider is down or
	// overloaded. Retryable by the client.
	ErrUnavailable = errors.New("generation service unavailable")

	// ErrInvalidResponse is returned when the provider's response cannot be
	// parsed into a content envelope.
	ErrInvalidResponse = errors.New("invalid response from generation service")

	// ErrContentBlocked is returned when the provider refuses the input on
	// safety grounds.
	ErrContentBlocked = errors.New("content blocked by generation service")
)
