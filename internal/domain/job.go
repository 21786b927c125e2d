package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a processing job.
type JobStatus string

// Possible job status values
const (
	JobStatusInitializing JobStatus = "initializing"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusError        JobStatus = "error"
	JobStatusCancelled    JobStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus represents the state of a single pipeline step.
type StepStatus string

// Possible step status values
const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusError      StepStatus = "error"
	StepStatusCancelled  StepStatus = "cancelled"
)

// Stage kinds name the discrete phases a pipeline can report. Step names and
// messages are free-form per input type; the kind keeps them classifiable.
const (
	StageValidate   = "validate"
	StageDetect     = "detect"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StagePersist    = "persist"
	StageFinalize   = "finalize"
)

// StepRecord is one entry in a job's audit trail. Records are append-only and
// never mutated after insertion.
type StepRecord struct {
	Step      int        `json:"step"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Message   string     `json:"message,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ProcessingJob is the live state record for one submitted request. It is
// owned exclusively by the progress hub; the orchestrator references it by id.
type ProcessingJob struct {
	RequestID   uuid.UUID      `json:"request_id"`
	UserID      uuid.UUID      `json:"user_id"`
	TotalSteps  int            `json:"total_steps"`
	CurrentStep int            `json:"current_step"`
	Progress    int            `json:"progress"`
	Status      JobStatus      `json:"status"`
	Steps       []StepRecord   `json:"steps"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	LastUpdate  time.Time      `json:"last_update"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *ContentResult `json:"result,omitempty"`
	Error       *JobError      `json:"error,omitempty"`
}

// NewProcessingJob creates a job in the initializing state.
func NewProcessingJob(requestID, userID uuid.UUID, totalSteps int) *ProcessingJob {
	now := time.Now().UTC()
	return &ProcessingJob{
		RequestID:  requestID,
		UserID:     userID,
		TotalSteps: totalSteps,
		Progress:   0,
		Status:     JobStatusInitializing,
		Steps:      make([]StepRecord, 0, totalSteps),
		Metadata:   make(map[string]any),
		StartTime:  now,
		LastUpdate: now,
	}
}

// Clone returns a deep copy safe to hand to subscribers and pollers while the
// original keeps being mutated under the hub's lock.
func (j *ProcessingJob) Clone() *ProcessingJob {
	c := *j
	c.Steps = make([]StepRecord, len(j.Steps))
	copy(c.Steps, j.Steps)
	c.Metadata = make(map[string]any, len(j.Metadata))
	for k, v := range j.Metadata {
		c.Metadata[k] = v
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// ETA estimates remaining time by linear extrapolation from elapsed time and
// current progress. Returns false when progress is zero.
func (j *ProcessingJob) ETA(now time.Time) (time.Duration, bool) {
	if j.Progress <= 0 {
		return 0, false
	}
	elapsed := now.Sub(j.StartTime)
	remaining := time.Duration(float64(elapsed) * float64(100-j.Progress) / float64(j.Progress))
	return remaining, true
}
