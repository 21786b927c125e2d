package mocks

import (
	"context"
	"sync/atomic"

	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/transcription"
)

// Transcriber is a configurable transcription.Transcriber mock with
// per-method call counters.
type Transcriber struct {
	UploadFn func(ctx context.Context, audio []byte) (string, error)
	SubmitFn func(ctx context.Context, uploadRef string, opts transcription.Options) (string, error)
	PollFn   func(ctx context.Context, jobID string) (*transcription.PollResult, error)
	DeleteFn func(ctx context.Context, jobID string) error

	uploads atomic.Int32
	polls   atomic.Int32
	deletes atomic.Int32
}

// NewTranscriber returns a mock whose jobs complete on the first poll.
func NewTranscriber() *Transcriber {
	return &Transcriber{
		UploadFn: func(context.Context, []byte) (string, error) {
			return "upload-ref-1", nil
		},
		SubmitFn: func(context.Context, string, transcription.Options) (string, error) {
			return "provider-job-1", nil
		},
		PollFn: func(context.Context, string) (*transcription.PollResult, error) {
			return &transcription.PollResult{
				Status: transcription.StatusCompleted,
				Transcript: &domain.Transcript{
					Text:            "We are a family dental clinic offering implants and whitening.",
					Confidence:      0.95,
					DurationSeconds: 42,
				},
			}, nil
		},
		DeleteFn: func(context.Context, string) error { return nil },
	}
}

func (m *Transcriber) Upload(ctx context.Context, audio []byte) (string, error) {
	m.uploads.Add(1)
	return m.UploadFn(ctx, audio)
}

func (m *Transcriber) Submit(ctx context.Context, uploadRef string, opts transcription.Options) (string, error) {
	return m.SubmitFn(ctx, uploadRef, opts)
}

func (m *Transcriber) Poll(ctx context.Context, jobID string) (*transcription.PollResult, error) {
	m.polls.Add(1)
	return m.PollFn(ctx, jobID)
}

func (m *Transcriber) Delete(ctx context.Context, jobID string) error {
	m.deletes.Add(1)
	return m.DeleteFn(ctx, jobID)
}

// Uploads reports how many times Upload was invoked.
func (m *Transcriber) Uploads() int { return int(m.uploads.Load()) }

// Polls reports how many times Poll was invoked.
func (m *Transcriber) Polls() int { return int(m.polls.Load()) }

// Deletes reports how many times Delete was invoked.
func (m *Transcriber) Deletes() int { return int(m.deletes.Load()) }
