package api

import (
	"time"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// GenerateTextRequest is the payload for POST /api/content/text.
type GenerateTextRequest struct {
	Text      string `json:"text"      validate:"required"`
	Specialty string `json:"specialty" validate:"omitempty,max=64"`
	Save      bool   `json:"save"`
	Refresh   bool   `json:"refresh"`
}

// GenerateAudioRequest is the payload for POST /api/content/audio. Audio is
// base64-encoded in the JSON body.
type GenerateAudioRequest struct {
	Audio            []byte `json:"audio"             validate:"required"`
	Language         string `json:"language"          validate:"omitempty,max=16"`
	SpeakerLabels    bool   `json:"speaker_labels"`
	ExpectedSpeakers int    `json:"expected_speakers" validate:"omitempty,gte=0,lte=10"`
	Save             bool   `json:"save"`
	Refresh          bool   `json:"refresh"`
}

// JobAcceptedResponse acknowledges an accepted submission.
type JobAcceptedResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// JobResponse is the job snapshot returned by the status endpoints.
type JobResponse struct {
	RequestID   string                `json:"request_id"`
	Status      domain.JobStatus      `json:"status"`
	Progress    int                   `json:"progress"`
	CurrentStep int                   `json:"current_step"`
	TotalSteps  int                   `json:"total_steps"`
	Steps       []domain.StepRecord   `json:"steps"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	StartTime   time.Time             `json:"start_time"`
	LastUpdate  time.Time             `json:"last_update"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	ETASeconds  *float64              `json:"eta_seconds,omitempty"`
	Result      *domain.ContentResult `json:"result,omitempty"`
	Error       *domain.JobError      `json:"error,omitempty"`
}

// newJobResponse converts a job snapshot into the API shape.
func newJobResponse(job *domain.ProcessingJob) JobResponse {
	resp := JobResponse{
		RequestID:   job.RequestID.String(),
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		TotalSteps:  job.TotalSteps,
		Steps:       job.Steps,
		Metadata:    job.Metadata,
		StartTime:   job.StartTime,
		LastUpdate:  job.LastUpdate,
		CompletedAt: job.CompletedAt,
		Result:      job.Result,
		Error:       job.Error,
	}
	if !job.Status.IsTerminal() {
		if eta, ok := job.ETA(time.Now().UTC()); ok {
			secs := eta.Seconds()
			resp.ETASeconds = &secs
		}
	}
	return resp
}

// JobListResponse wraps the job listing endpoint payload.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// InvalidateCacheRequest is the payload for POST /api/cache/invalidate.
// Exactly one of Pattern or All must be set.
type InvalidateCacheRequest struct {
	Pattern string `json:"pattern" validate:"omitempty,max=256"`
	All     bool   `json:"all"`
}

// InvalidateCacheResponse reports the outcome of an invalidation. Invalidated
// counts distinct keys removed for a pattern request; Flushed is set for a
// full flush, where no count is available.
type InvalidateCacheResponse struct {
	Invalidated int  `json:"invalidated"`
	Flushed     bool `json:"flushed,omitempty"`
}
