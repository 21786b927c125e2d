package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/transcription"
)

func sampleAudio() []byte {
	return bytes.Repeat([]byte{0x52, 0x49, 0x46, 0x46}, 64)
}

func TestOrchestrator_AudioHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	requestID, err := f.orch.SubmitAudio(userID, domain.AudioInput{Audio: sampleAudio()})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, audioTotalSteps, job.TotalSteps)
	require.NotNil(t, job.Result)
	assert.Equal(t, "dental", job.Result.Specialty, "specialty comes from the transcript text")
	assert.False(t, job.Result.Cached)

	assert.Equal(t, 1, f.transcriber.Uploads())
	assert.Equal(t, 1, f.transcriber.Polls())
	assert.Equal(t, 1, f.transcriber.Deletes(), "provider transcript is cleaned up after use")
	assert.Equal(t, 1, f.generator.Calls())

	assert.Equal(t, []int{10, 25, 40, 55, 75, 90, 100}, f.pub.progressSequence(requestID))
}

func TestOrchestrator_AudioResultCacheHit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	audio := sampleAudio()

	first, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: audio})
	require.NoError(t, err)
	waitTerminal(t, f.orch, first)

	second, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: audio})
	require.NoError(t, err)
	job := waitTerminal(t, f.orch, second)

	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Cached)
	assert.Equal(t, 1, f.transcriber.Uploads(), "cached result skips transcription entirely")
	assert.Equal(t, 1, f.generator.Calls())
}

func TestOrchestrator_TranscriptCacheSurvivesRefresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	audio := sampleAudio()

	first, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: audio})
	require.NoError(t, err)
	waitTerminal(t, f.orch, first)
	require.Equal(t, 1, f.transcriber.Uploads())

	// Refresh bypasses the generation result cache but not the transcript
	// cache; the same audio is not transcribed twice.
	second, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: audio, Refresh: true})
	require.NoError(t, err)
	job := waitTerminal(t, f.orch, second)

	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Cached)
	assert.Equal(t, 2, f.generator.Calls())
	assert.Equal(t, 1, f.transcriber.Uploads())
}

func TestOrchestrator_AudioValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.MaxAudioBytes = 128 })

	t.Run("empty payload", func(t *testing.T) {
		_, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{})
		assert.ErrorIs(t, err, domain.ErrEmptyAudio)
	})

	t.Run("oversized payload", func(t *testing.T) {
		_, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: make([]byte, 129)})
		assert.ErrorIs(t, err, domain.ErrAudioTooLarge)
	})

	assert.Equal(t, 0, f.hub.TrackerCount())
}

func TestOrchestrator_TranscriptionTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.PollMaxAttempts = 3 })
	f.transcriber.PollFn = func(context.Context, string) (*transcription.PollResult, error) {
		return &transcription.PollResult{Status: transcription.StatusProcessing}, nil
	}

	requestID, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: sampleAudio()})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	assert.Equal(t, domain.JobStatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, domain.ErrorKindTimeout, job.Error.Kind)
	assert.Equal(t, 3, f.transcriber.Polls(), "polling stops at the attempt bound")
	assert.Equal(t, 1, f.transcriber.Deletes(), "provider job is cleaned up even on timeout")
}

func TestOrchestrator_TranscriptionProviderError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.transcriber.PollFn = func(context.Context, string) (*transcription.PollResult, error) {
		return &transcription.PollResult{
			Status:       transcription.StatusError,
			ErrorMessage: "audio format rejected by provider",
		}, nil
	}

	requestID, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: sampleAudio()})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	assert.Equal(t, domain.JobStatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, domain.ErrorKindUnavailable, job.Error.Kind)
}

func TestOrchestrator_AudioDisabledWithoutTranscriber(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.orch.transcriber = nil

	_, err := f.orch.SubmitAudio(uuid.New(), domain.AudioInput{Audio: sampleAudio()})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDetectSpecialty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		hint string
		want string
	}{
		{"dental keywords", "our dental clinic offers implants and orthodontics", "", "dental"},
		{"dermatology keywords", "acne and eczema treatment plus botox and skin peels", "", "dermatology"},
		{"cardiology keywords", "heart checkups with ecg and blood pressure monitoring", "", "cardiology"},
		{"explicit hint wins", "generic wellness text with no markers", "pediatrics", "pediatrics"},
		{"no markers", "we are a friendly neighborhood practice", "", specialtyGeneral},
		{"case insensitive", "TEETH WHITENING and DENTAL IMPLANTS", "", "dental"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectSpecialty(tt.text, tt.hint))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b c", normalizeText("  a\n\tb   c  "))
	assert.Equal(t, "", normalizeText("   "))
	assert.Equal(t, "same words", normalizeText("same words"))
}
