package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/transcription"
)

// runAudio drives the six-step audio pipeline:
// validate -> transcript probe/upload -> poll -> detect -> generate ->
// assemble and persist. The overall result is cached by a hash of the audio
// bytes; the transcript is cached separately under its own namespace so a
// repeated upload skips transcription even when the generation cache misses.
func (o *Orchestrator) runAudio(
	ctx context.Context,
	requestID, userID uuid.UUID,
	input domain.AudioInput,
) (*domain.ContentResult, error) {
	o.hub.UpdateProgress(requestID, hub.Update{
		Step:       1,
		Progress:   10,
		Status:     domain.JobStatusProcessing,
		StepName:   domain.StageValidate,
		StepStatus: domain.StepStatusCompleted,
		Message:    "audio validated",
		Metadata: map[string]any{
			"input_type":  string(domain.InputTypeAudio),
			"audio_bytes": len(input.Audio),
		},
	})

	resultKey := cache.DeriveBytesKey(cache.NamespaceContent, input.Audio)
	if !input.Refresh {
		if result, ok := o.probeResultCache(ctx, resultKey); ok {
			o.logger.Debug("serving audio generation result from cache",
				"request_id", requestID, "cache_key", resultKey)
			o.hub.UpdateProgress(requestID, hub.Update{
				Step:       2,
				Progress:   90,
				StepName:   domain.StageTranscribe,
				StepStatus: domain.StepStatusCompleted,
				Message:    "cached result found",
				Metadata:   map[string]any{"cached": true},
			})
			return result, nil
		}
	}
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	transcript, err := o.obtainTranscript(ctx, requestID, input)
	if err != nil {
		return nil, err
	}
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	specialty := detectSpecialty(transcript.Text, "")
	o.hub.UpdateProgress(requestID, hub.Update{
		Step:       4,
		Progress:   55,
		StepName:   domain.StageDetect,
		StepStatus: domain.StepStatusCompleted,
		Message:    "specialty detected: " + specialty,
		Metadata:   map[string]any{"specialty": specialty},
	})
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	content, err := o.generate(ctx, requestID, normalizeText(transcript.Text), specialty, 5, 75)
	if err != nil {
		return nil, err
	}
	if o.cancelled(requestID) {
		return nil, errCancelledMidFlight
	}

	return o.assemble(ctx, requestID, userID, assembleParams{
		step:          6,
		progress:      90,
		content:       content,
		specialty:     specialty,
		cacheKey:      resultKey,
		originalInput: transcript.Text,
		save:          input.Save,
		inputType:     domain.InputTypeAudio,
		extraMeta: map[string]any{
			"transcript_confidence": transcript.Confidence,
			"audio_duration_secs":   transcript.DurationSeconds,
		},
	})
}

// obtainTranscript returns the transcript for the audio, from the transcript
// cache when possible, otherwise via the provider's upload/submit/poll flow.
func (o *Orchestrator) obtainTranscript(
	ctx context.Context,
	requestID uuid.UUID,
	input domain.AudioInput,
) (*domain.Transcript, error) {
	transcriptKey := cache.DeriveBytesKey(cache.NamespaceTranscript, input.Audio)

	if raw, found := o.cache.Get(ctx, transcriptKey); found {
		var t domain.Transcript
		if err := json.Unmarshal(raw, &t); err == nil {
			o.hub.UpdateProgress(requestID, hub.Update{
				Step:       3,
				Progress:   40,
				StepName:   domain.StageTranscribe,
				StepStatus: domain.StepStatusCompleted,
				Message:    "transcript served from cache",
				Metadata:   map[string]any{"transcript_cached": true},
			})
			return &t, nil
		}
		o.cache.Delete(ctx, transcriptKey)
	}

	o.hub.UpdateProgress(requestID, hub.Update{
		Step:     2,
		Progress: 25,
		StepName: domain.StageTranscribe,
		Message:  "uploading audio for transcription",
	})

	uploadRef, err := o.transcriber.Upload(ctx, input.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio upload failed: %w", err)
	}

	jobID, err := o.transcriber.Submit(ctx, uploadRef, transcription.Options{
		Language:         input.Language,
		SpeakerLabels:    input.SpeakerLabels,
		ExpectedSpeakers: input.ExpectedSpeakers,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription submit failed: %w", err)
	}

	// Server-side transcripts are discarded after use regardless of outcome.
	defer func() {
		if delErr := o.transcriber.Delete(context.Background(), jobID); delErr != nil {
			o.logger.Debug("failed to delete provider transcript",
				"request_id", requestID, "provider_job_id", jobID, "error", delErr)
		}
	}()

	o.hub.UpdateProgress(requestID, hub.Update{
		Step:     3,
		Progress: 40,
		StepName: domain.StageTranscribe,
		Message:  "waiting for transcription",
	})

	transcript, err := o.pollTranscription(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(transcript); err == nil {
		o.cache.Set(ctx, transcriptKey, raw, o.cfg.CacheTTL)
	}
	return transcript, nil
}

// pollTranscription polls the provider until the job reaches a terminal
// state, giving up after the configured attempt bound.
func (o *Orchestrator) pollTranscription(ctx context.Context, jobID string) (*domain.Transcript, error) {
	for attempt := 1; attempt <= o.cfg.PollMaxAttempts; attempt++ {
		result, err := o.transcriber.Poll(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("transcription poll failed: %w", err)
		}

		switch result.Status {
		case transcription.StatusCompleted:
			if result.Transcript == nil {
				return nil, fmt.Errorf("transcription completed without a transcript")
			}
			return result.Transcript, nil
		case transcription.StatusError:
			return nil, fmt.Errorf("%w: %s", transcription.ErrUnavailable, result.ErrorMessage)
		}

		if attempt == o.cfg.PollMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrTranscriptionTimeout, o.cfg.PollMaxAttempts)
}
