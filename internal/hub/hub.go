// Package hub owns the registry of active progress trackers and the
// publish/subscribe channel that pushes step-by-step updates to connected
// clients. The orchestrator is the only writer; subscribers and status polls
// only ever see snapshots.
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// Config tunes tracker retention and the eviction sweep.
type Config struct {
	// CompletedRetention is how long a completed tracker stays readable.
	CompletedRetention time.Duration

	// ErrorRetention is how long an errored or cancelled tracker stays
	// readable. Shorter than CompletedRetention: there is no result worth
	// polling for.
	ErrorRetention time.Duration

	// StaleAfter is the backstop: any tracker older than this is swept
	// regardless of status.
	StaleAfter time.Duration

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns retention windows on the order of minutes and a
// one-hour staleness backstop.
func DefaultConfig() Config {
	return Config{
		CompletedRetention: 5 * time.Minute,
		ErrorRetention:     time.Minute,
		StaleAfter:         time.Hour,
		SweepInterval:      time.Minute,
	}
}

// Update carries the fields of a single progress report. Zero-valued fields
// are left untouched on the tracker.
type Update struct {
	Step       int
	Progress   int
	Status     domain.JobStatus
	StepName   string
	StepStatus domain.StepStatus
	Message    string
	Metadata   map[string]any
}

// trackerEntry pairs a job with its own mutex so different jobs mutate fully
// in parallel while updates to one job stay serialized.
type trackerEntry struct {
	mu      sync.Mutex
	job     *domain.ProcessingJob
	evictAt time.Time // zero until the job reaches a terminal state
}

// Hub is the progress broadcast hub. Construct with New; instances are
// independent, so tests can create one per case.
type Hub struct {
	mu       sync.RWMutex
	trackers map[uuid.UUID]*trackerEntry

	pub    Publisher
	cfg    Config
	logger *slog.Logger

	// now is swapped in tests to drive the sweep with a virtual clock.
	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a hub publishing through pub.
func New(pub Publisher, cfg Config, logger *slog.Logger) *Hub {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Hub{
		trackers: make(map[uuid.UUID]*trackerEntry),
		pub:      pub,
		cfg:      cfg,
		logger:   logger.With("component", "progress_hub"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background eviction sweep. Call Close to stop it.
func (h *Hub) Start() {
	go func() {
		defer close(h.doneCh)
		ticker := time.NewTicker(h.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.Sweep()
			}
		}
	}()
}

// Close stops the background sweep.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		<-h.doneCh
	})
}

// CreateTracker registers a new job for the request id. Request ids are
// generated uniquely at submission, so a collision is a programmer error and
// is returned as such.
func (h *Hub) CreateTracker(requestID, userID uuid.UUID, totalSteps int) (*domain.ProcessingJob, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.trackers[requestID]; exists {
		return nil, fmt.Errorf("tracker already exists for request %s", requestID)
	}

	job := domain.NewProcessingJob(requestID, userID, totalSteps)
	job.StartTime = h.now().UTC()
	job.LastUpdate = job.StartTime
	h.trackers[requestID] = &trackerEntry{job: job}

	h.logger.Debug("tracker created",
		"request_id", requestID, "user_id", userID, "total_steps", totalSteps)
	return job.Clone(), nil
}

// UpdateProgress applies a progress report to the tracker and publishes the
// resulting snapshot. Absent or terminal trackers make this a warning no-op.
func (h *Hub) UpdateProgress(requestID uuid.UUID, u Update) {
	entry := h.entry(requestID)
	if entry == nil {
		h.logger.Warn("progress update for unknown tracker", "request_id", requestID)
		return
	}

	entry.mu.Lock()
	job := entry.job
	if job.Status.IsTerminal() {
		entry.mu.Unlock()
		h.logger.Warn("progress update for terminal tracker",
			"request_id", requestID, "status", job.Status)
		return
	}

	now := h.now().UTC()

	if u.Status != "" && !u.Status.IsTerminal() {
		job.Status = u.Status
	}
	if u.Step > job.CurrentStep {
		job.CurrentStep = u.Step
	}
	if p := clampProgress(u.Progress); p > job.Progress {
		job.Progress = p
	}
	if u.StepName != "" {
		status := u.StepStatus
		if status == "" {
			status = domain.StepStatusInProgress
		}
		job.Steps = append(job.Steps, domain.StepRecord{
			Step:      job.CurrentStep,
			Name:      u.StepName,
			Status:    status,
			Message:   u.Message,
			Timestamp: now,
		})
	}
	for k, v := range u.Metadata {
		job.Metadata[k] = v
	}
	job.LastUpdate = now

	snapshot := job.Clone()
	entry.mu.Unlock()

	h.publish(EventProgress, snapshot)
}

// CompleteProgress moves the tracker to completed with the final result and
// schedules eviction after the completed-retention window. A tracker already
// terminal (for example cancelled while the pipeline was still running) is
// left untouched.
func (h *Hub) CompleteProgress(requestID uuid.UUID, result *domain.ContentResult) {
	h.finalize(requestID, EventCompleted, func(job *domain.ProcessingJob, now time.Time) {
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.Result = result
		job.Steps = append(job.Steps, domain.StepRecord{
			Step:      job.TotalSteps,
			Name:      domain.StageFinalize,
			Status:    domain.StepStatusCompleted,
			Timestamp: now,
		})
	}, h.cfg.CompletedRetention)
}

// ErrorProgress moves the tracker to the error state with a redacted failure
// description and schedules a shorter eviction window.
func (h *Hub) ErrorProgress(requestID uuid.UUID, jobErr *domain.JobError) {
	h.finalize(requestID, EventError, func(job *domain.ProcessingJob, now time.Time) {
		job.Status = domain.JobStatusError
		job.Error = jobErr
		job.Steps = append(job.Steps, domain.StepRecord{
			Step:      job.CurrentStep,
			Name:      domain.StageFinalize,
			Status:    domain.StepStatusError,
			Message:   jobErr.Message,
			Timestamp: now,
		})
	}, h.cfg.ErrorRetention)
}

// CancelProgress moves the tracker to cancelled, freezing progress at its
// current value. Returns ErrJobNotFound or ErrJobTerminal when cancellation
// is not possible.
func (h *Hub) CancelProgress(requestID uuid.UUID) error {
	entry := h.entry(requestID)
	if entry == nil {
		return domain.ErrJobNotFound
	}

	entry.mu.Lock()
	job := entry.job
	if job.Status.IsTerminal() {
		entry.mu.Unlock()
		return domain.ErrJobTerminal
	}

	now := h.now().UTC()
	job.Status = domain.JobStatusCancelled
	job.LastUpdate = now
	job.CompletedAt = &now
	job.Steps = append(job.Steps, domain.StepRecord{
		Step:      job.CurrentStep,
		Name:      domain.StageFinalize,
		Status:    domain.StepStatusCancelled,
		Message:   "cancelled by user",
		Timestamp: now,
	})
	entry.evictAt = now.Add(h.cfg.ErrorRetention)

	snapshot := job.Clone()
	entry.mu.Unlock()

	h.publish(EventCancelled, snapshot)
	return nil
}

// GetTracker returns a snapshot of the job, or false when the tracker is
// absent or already evicted.
func (h *Hub) GetTracker(requestID uuid.UUID) (*domain.ProcessingJob, bool) {
	entry := h.entry(requestID)
	if entry == nil {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job.Clone(), true
}

// GetTrackersForUser returns snapshots of every tracker owned by the user,
// most recently started first.
func (h *Hub) GetTrackersForUser(userID uuid.UUID) []*domain.ProcessingJob {
	h.mu.RLock()
	entries := make([]*trackerEntry, 0)
	for _, e := range h.trackers {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	var jobs []*domain.ProcessingJob
	for _, e := range entries {
		e.mu.Lock()
		if e.job.UserID == userID {
			jobs = append(jobs, e.job.Clone())
		}
		e.mu.Unlock()
	}

	for i := 0; i < len(jobs); i++ {
		for j := i + 1; j < len(jobs); j++ {
			if jobs[j].StartTime.After(jobs[i].StartTime) {
				jobs[i], jobs[j] = jobs[j], jobs[i]
			}
		}
	}
	return jobs
}

// Subscribe opens a realtime event stream for the request id. The returned
// cancel function must be called when the client disconnects.
func (h *Hub) Subscribe(requestID uuid.UUID) (<-chan Event, func()) {
	return h.pub.Subscribe(JobTopic(requestID))
}

// SubscribeUser opens a realtime event stream covering all of a user's jobs.
func (h *Hub) SubscribeUser(userID uuid.UUID) (<-chan Event, func()) {
	return h.pub.Subscribe(UserTopic(userID))
}

// Sweep evicts trackers whose retention deadline has passed, plus any tracker
// older than the staleness backstop regardless of status. It runs on a timer
// but may be called directly.
func (h *Hub) Sweep() {
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, entry := range h.trackers {
		entry.mu.Lock()
		expired := (!entry.evictAt.IsZero() && now.After(entry.evictAt)) ||
			now.Sub(entry.job.StartTime) > h.cfg.StaleAfter
		status := entry.job.Status
		entry.mu.Unlock()

		if expired {
			delete(h.trackers, id)
			h.logger.Debug("tracker evicted", "request_id", id, "status", status)
		}
	}
}

// TrackerCount reports the number of live trackers.
func (h *Hub) TrackerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.trackers)
}

func (h *Hub) entry(requestID uuid.UUID) *trackerEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.trackers[requestID]
}

// finalize applies a terminal mutation under the tracker lock, schedules
// eviction, and publishes the terminal event. Already-terminal trackers are
// left untouched so a straggling background completion cannot overwrite a
// cancellation.
func (h *Hub) finalize(
	requestID uuid.UUID,
	eventType EventType,
	mutate func(job *domain.ProcessingJob, now time.Time),
	retention time.Duration,
) {
	entry := h.entry(requestID)
	if entry == nil {
		h.logger.Warn("terminal update for unknown tracker", "request_id", requestID)
		return
	}

	entry.mu.Lock()
	job := entry.job
	if job.Status.IsTerminal() {
		entry.mu.Unlock()
		h.logger.Warn("terminal update for already-terminal tracker",
			"request_id", requestID, "status", job.Status)
		return
	}

	now := h.now().UTC()
	mutate(job, now)
	job.LastUpdate = now
	job.CompletedAt = &now
	entry.evictAt = now.Add(retention)

	snapshot := job.Clone()
	entry.mu.Unlock()

	h.publish(eventType, snapshot)
}

func (h *Hub) publish(eventType EventType, snapshot *domain.ProcessingJob) {
	now := h.now().UTC()
	event := Event{
		Type:      eventType,
		RequestID: snapshot.RequestID,
		UserID:    snapshot.UserID,
		Job:       snapshot,
		Timestamp: now,
	}
	if eta, ok := snapshot.ETA(now); ok && !snapshot.Status.IsTerminal() {
		secs := eta.Seconds()
		event.ETASeconds = &secs
	}

	h.pub.Publish(JobTopic(snapshot.RequestID), event)
	h.pub.Publish(UserTopic(snapshot.UserID), event)
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
