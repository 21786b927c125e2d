// Package pipeline implements the request orchestrator: the per-job state
// machine that validates input, probes the cache, drives the external
// generation and transcription collaborators, and reports every stage to the
// progress hub. Each submitted request runs its pipeline in its own
// goroutine; the hub serializes mutations per request id.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/generation"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/redact"
	"github.com/kestrelworks/sitegen-api/internal/transcription"
)

// Step counts per input type.
const (
	textTotalSteps  = 4
	audioTotalSteps = 6
)

// Persister is the optional document persistence collaborator. Save failures
// are downgraded to a warning on the result, never a job failure.
type Persister interface {
	Save(
		ctx context.Context,
		content *domain.GeneratedContent,
		originalInput string,
		userID uuid.UUID,
		meta map[string]any,
	) (documentID string, err error)
}

// Config tunes the orchestrator.
type Config struct {
	// MaxConcurrent caps simultaneous in-flight jobs. The cap is enforced:
	// submissions beyond capacity are rejected with ErrTooManyJobs rather
	// than queued.
	MaxConcurrent int

	GenerationTimeout time.Duration
	PersistTimeout    time.Duration

	MinTextLength int
	MaxTextLength int
	MaxAudioBytes int

	PollInterval    time.Duration
	PollMaxAttempts int

	CacheTTL time.Duration
}

// DefaultConfig returns working defaults for tests and local runs.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     5,
		GenerationTimeout: 2 * time.Minute,
		PersistTimeout:    15 * time.Second,
		MinTextLength:     10,
		MaxTextLength:     10000,
		MaxAudioBytes:     25 * 1024 * 1024,
		PollInterval:      3 * time.Second,
		PollMaxAttempts:   60,
		CacheTTL:          time.Hour,
	}
}

// Orchestrator drives submitted requests through the generation pipeline.
type Orchestrator struct {
	hub         *hub.Hub
	cache       *cache.Resilient
	generator   generation.Generator
	transcriber transcription.Transcriber // nil disables audio submissions
	persister   Persister                 // nil disables persistence
	cfg         Config
	logger      *slog.Logger

	slots chan struct{}
	wg    sync.WaitGroup
}

// New creates an orchestrator. transcriber and persister may be nil.
func New(
	h *hub.Hub,
	c *cache.Resilient,
	gen generation.Generator,
	tr transcription.Transcriber,
	p Persister,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Orchestrator{
		hub:         h,
		cache:       c,
		generator:   gen,
		transcriber: tr,
		persister:   p,
		cfg:         cfg,
		logger:      logger.With("component", "orchestrator"),
		slots:       make(chan struct{}, cfg.MaxConcurrent),
	}
}

// SubmitText validates a text submission, creates its tracker, and starts the
// pipeline in the background. Validation failures surface immediately without
// a tracker ever existing.
func (o *Orchestrator) SubmitText(userID uuid.UUID, input domain.TextInput) (uuid.UUID, error) {
	if err := o.validateText(input); err != nil {
		return uuid.Nil, err
	}
	if err := o.acquireSlot(); err != nil {
		return uuid.Nil, err
	}

	requestID := uuid.New()
	if _, err := o.hub.CreateTracker(requestID, userID, textTotalSteps); err != nil {
		o.releaseSlot()
		return uuid.Nil, fmt.Errorf("failed to create tracker: %w", err)
	}

	o.wg.Add(1)
	go o.run(requestID, func(ctx context.Context) (*domain.ContentResult, error) {
		return o.runText(ctx, requestID, userID, input)
	})
	return requestID, nil
}

// SubmitAudio validates an audio submission, creates its tracker, and starts
// the pipeline in the background.
func (o *Orchestrator) SubmitAudio(userID uuid.UUID, input domain.AudioInput) (uuid.UUID, error) {
	if o.transcriber == nil {
		return uuid.Nil, fmt.Errorf("%w: audio submissions are not enabled", domain.ErrValidation)
	}
	if err := o.validateAudio(input); err != nil {
		return uuid.Nil, err
	}
	if err := o.acquireSlot(); err != nil {
		return uuid.Nil, err
	}

	requestID := uuid.New()
	if _, err := o.hub.CreateTracker(requestID, userID, audioTotalSteps); err != nil {
		o.releaseSlot()
		return uuid.Nil, fmt.Errorf("failed to create tracker: %w", err)
	}

	o.wg.Add(1)
	go o.run(requestID, func(ctx context.Context) (*domain.ContentResult, error) {
		return o.runAudio(ctx, requestID, userID, input)
	})
	return requestID, nil
}

// Cancel marks the job cancelled if the caller owns it and it is not already
// terminal. In-flight collaborator calls are not preempted; their eventual
// results are discarded by the hub's terminal-wins rule.
func (o *Orchestrator) Cancel(requestID, userID uuid.UUID) error {
	job, ok := o.hub.GetTracker(requestID)
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.UserID != userID {
		return domain.ErrNotJobOwner
	}
	return o.hub.CancelProgress(requestID)
}

// Status returns a snapshot of the job.
func (o *Orchestrator) Status(requestID uuid.UUID) (*domain.ProcessingJob, bool) {
	return o.hub.GetTracker(requestID)
}

// JobsForUser lists the user's in-flight and recently finished jobs.
func (o *Orchestrator) JobsForUser(userID uuid.UUID) []*domain.ProcessingJob {
	return o.hub.GetTrackersForUser(userID)
}

// InFlight reports current and maximum concurrent jobs.
func (o *Orchestrator) InFlight() (current, max int) {
	return len(o.slots), cap(o.slots)
}

// Close waits for all in-flight pipelines to finish.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

// run executes one pipeline, translating its outcome into exactly one
// terminal hub call. Panics are contained to the job.
func (o *Orchestrator) run(requestID uuid.UUID, fn func(ctx context.Context) (*domain.ContentResult, error)) {
	defer o.wg.Done()
	defer o.releaseSlot()

	// The pipeline outlives the submitting HTTP request, so it runs on a
	// fresh context rather than the handler's.
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panicked", "request_id", requestID, "panic", r)
			o.hub.ErrorProgress(requestID, &domain.JobError{
				Kind:    domain.ErrorKindInternal,
				Message: "content generation failed",
			})
		}
	}()

	result, err := fn(ctx)
	if err != nil {
		o.logger.Error("pipeline failed",
			"request_id", requestID, "error", redact.Error(err))
		o.hub.ErrorProgress(requestID, classify(err))
		return
	}
	o.hub.CompleteProgress(requestID, result)
}

// cancelled reports whether the job was cancelled out from under the
// pipeline. Checked between stages; expensive work is skipped once true.
func (o *Orchestrator) cancelled(requestID uuid.UUID) bool {
	job, ok := o.hub.GetTracker(requestID)
	return ok && job.Status == domain.JobStatusCancelled
}

func (o *Orchestrator) acquireSlot() error {
	select {
	case o.slots <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("%w: %d jobs in flight", domain.ErrTooManyJobs, cap(o.slots))
	}
}

func (o *Orchestrator) releaseSlot() {
	<-o.slots
}
