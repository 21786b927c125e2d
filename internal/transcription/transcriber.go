// Package transcription defines the boundary between the pipeline core and
// the external speech-to-text provider, following its upload/submit/poll
// shape. The poll loop with its bounded attempt count lives in the pipeline.
package transcription

import (
	"context"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// Options carries per-submission transcription settings.
type Options struct {
	Language         string
	SpeakerLabels    bool
	ExpectedSpeakers int
}

// JobStatus is the provider-side state of a transcription job.
type JobStatus string

// Possible provider job states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// PollResult is one observation of a provider-side transcription job.
type PollResult struct {
	Status       JobStatus
	Transcript   *domain.Transcript // set when Status is StatusCompleted
	ErrorMessage string             // set when Status is StatusError
}

// Transcriber is the narrow contract with the speech-to-text provider.
type Transcriber interface {
	// Upload stores the audio with the provider and returns an upload reference.
	Upload(ctx context.Context, audio []byte) (string, error)

	// Submit starts a transcription job for a previously uploaded reference
	// and returns the provider-side job id.
	Submit(ctx context.Context, uploadRef string, opts Options) (string, error)

	// Poll reports the current state of the provider-side job.
	Poll(ctx context.Context, jobID string) (*PollResult, error)

	// Delete removes the server-side transcript after use. Best-effort.
	Delete(ctx context.Context, jobID string) error
}
