package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/generation"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/mocks"
)

const validText = "We are a family dental clinic offering implants and teeth whitening."

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingPublisher captures every published event for later assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []hub.Event
}

func (p *recordingPublisher) Publish(_ string, event hub.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Subscribe(string) (<-chan hub.Event, func()) {
	ch := make(chan hub.Event)
	close(ch)
	return ch, func() {}
}

// progressSequence returns the distinct progress values seen on the job
// topic for the request, in emission order.
func (p *recordingPublisher) progressSequence(requestID uuid.UUID) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var seq []int
	for _, ev := range p.events {
		if ev.RequestID != requestID {
			continue
		}
		if len(seq) == 0 || seq[len(seq)-1] != ev.Job.Progress {
			seq = append(seq, ev.Job.Progress)
		}
	}
	// Every event goes to both the job and the user topic; deduplication by
	// progress value above also collapses those pairs.
	return seq
}

type fixture struct {
	orch        *Orchestrator
	hub         *hub.Hub
	cache       *cache.Resilient
	generator   *mocks.Generator
	transcriber *mocks.Transcriber
	persister   *mocks.Persister
	pub         *recordingPublisher
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	logger := testLogger()
	pub := &recordingPublisher{}
	h := hub.New(pub, hub.DefaultConfig(), logger)
	c := cache.New(nil, cache.Options{LocalCapacity: 100, DefaultTTL: time.Hour}, logger)

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxAttempts = 5
	for _, m := range mutate {
		m(&cfg)
	}

	gen := mocks.NewGenerator()
	tr := mocks.NewTranscriber()
	p := mocks.NewPersister()

	return &fixture{
		orch:        New(h, c, gen, tr, p, cfg, logger),
		hub:         h,
		cache:       c,
		generator:   gen,
		transcriber: tr,
		persister:   p,
		pub:         pub,
	}
}

// waitTerminal polls until the job reaches a terminal state.
func waitTerminal(t *testing.T, o *Orchestrator, requestID uuid.UUID) *domain.ProcessingJob {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if job, ok := o.Status(requestID); ok && job.Status.IsTerminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatal("job did not reach a terminal state in time")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestOrchestrator_TextHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	requestID, err := f.orch.SubmitText(userID, domain.TextInput{Text: validText})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, textTotalSteps, job.TotalSteps)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Cached)
	assert.Equal(t, "dental", job.Result.Specialty)
	assert.NotEmpty(t, job.Result.CacheKey)
	assert.Equal(t, 1, f.generator.Calls())

	assert.Equal(t, []int{10, 30, 60, 90, 100}, f.pub.progressSequence(requestID))
}

func TestOrchestrator_CacheHitSkipsGeneration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	input := domain.TextInput{Text: validText}

	first, err := f.orch.SubmitText(userID, input)
	require.NoError(t, err)
	job := waitTerminal(t, f.orch, first)
	require.Equal(t, domain.JobStatusCompleted, job.Status)
	require.Equal(t, 1, f.generator.Calls())

	second, err := f.orch.SubmitText(userID, input)
	require.NoError(t, err)
	job = waitTerminal(t, f.orch, second)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Cached)
	assert.Equal(t, 1, f.generator.Calls(), "cache hit must skip the generation stage")
}

func TestOrchestrator_ForcedRefreshBypassesCache(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	first, err := f.orch.SubmitText(userID, domain.TextInput{Text: validText})
	require.NoError(t, err)
	waitTerminal(t, f.orch, first)

	second, err := f.orch.SubmitText(userID, domain.TextInput{Text: validText, Refresh: true})
	require.NoError(t, err)
	job := waitTerminal(t, f.orch, second)

	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Cached)
	assert.Equal(t, 2, f.generator.Calls())
}

func TestOrchestrator_ValidationFailsBeforeTracker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"too short", "hi", domain.ErrTextTooShort},
		{"empty", "", domain.ErrTextTooShort},
		{"whitespace only", "   \n\t  ", domain.ErrTextTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.SubmitText(uuid.New(), domain.TextInput{Text: tt.text})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 0, f.hub.TrackerCount(), "no tracker is created for invalid input")
	assert.Equal(t, 0, f.generator.Calls())
}

func TestOrchestrator_TextTooLong(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.MaxTextLength = 50 })

	long := validText + " " + validText
	_, err := f.orch.SubmitText(uuid.New(), domain.TextInput{Text: long})
	assert.ErrorIs(t, err, domain.ErrTextTooLong)
}

func TestOrchestrator_GenerationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.generator.GenerateFn = func(context.Context, string, string) (*domain.GeneratedContent, error) {
		return nil, generation.ErrUnavailable
	}

	requestID, err := f.orch.SubmitText(uuid.New(), domain.TextInput{Text: validText})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	assert.Equal(t, domain.JobStatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, domain.ErrorKindUnavailable, job.Error.Kind)
	assert.Nil(t, job.Result)
}

func TestOrchestrator_PersistenceFailureIsWarning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.persister.SaveFn = func(context.Context, *domain.GeneratedContent, string, uuid.UUID, map[string]any) (string, error) {
		return "", context.DeadlineExceeded
	}

	requestID, err := f.orch.SubmitText(uuid.New(), domain.TextInput{Text: validText, Save: true})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status, "a failed save must not fail the job")
	require.NotNil(t, job.Result)
	assert.NotEmpty(t, job.Result.Warning)
	assert.Empty(t, job.Result.DocumentID)
}

func TestOrchestrator_PersistenceSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	requestID, err := f.orch.SubmitText(uuid.New(), domain.TextInput{Text: validText, Save: true})
	require.NoError(t, err)

	job := waitTerminal(t, f.orch, requestID)
	require.NotNil(t, job.Result)
	assert.NotEmpty(t, job.Result.DocumentID)
	assert.Empty(t, job.Result.Warning)
	assert.Equal(t, 1, f.persister.Calls())
}

func TestOrchestrator_Cancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	// Gate the generator so the job is reliably mid-flight when cancelled.
	started := make(chan struct{})
	release := make(chan struct{})
	f.generator.GenerateFn = func(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error) {
		close(started)
		<-release
		return &domain.GeneratedContent{HeroSection: map[string]any{"h": "late"}}, nil
	}

	requestID, err := f.orch.SubmitText(userID, domain.TextInput{Text: validText})
	require.NoError(t, err)
	<-started

	require.NoError(t, f.orch.Cancel(requestID, userID))

	job, ok := f.orch.Status(requestID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	frozen := job.Progress

	// Let the straggling background work finish; it must not revert the
	// terminal state or attach a result.
	close(release)
	f.orch.Close()

	job, ok = f.orch.Status(requestID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Equal(t, frozen, job.Progress)
	assert.Nil(t, job.Result)
}

func TestOrchestrator_CancelAuthorization(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := uuid.New()

	requestID, err := f.orch.SubmitText(owner, domain.TextInput{Text: validText})
	require.NoError(t, err)

	t.Run("non-owner cannot cancel", func(t *testing.T) {
		assert.ErrorIs(t, f.orch.Cancel(requestID, uuid.New()), domain.ErrNotJobOwner)
	})

	t.Run("unknown job", func(t *testing.T) {
		assert.ErrorIs(t, f.orch.Cancel(uuid.New(), owner), domain.ErrJobNotFound)
	})

	t.Run("terminal job cannot be cancelled", func(t *testing.T) {
		waitTerminal(t, f.orch, requestID)
		assert.ErrorIs(t, f.orch.Cancel(requestID, owner), domain.ErrJobTerminal)
	})
}

func TestOrchestrator_AdmissionControl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.MaxConcurrent = 1 })

	release := make(chan struct{})
	f.generator.GenerateFn = func(context.Context, string, string) (*domain.GeneratedContent, error) {
		<-release
		return &domain.GeneratedContent{}, nil
	}

	first, err := f.orch.SubmitText(uuid.New(), domain.TextInput{Text: validText})
	require.NoError(t, err)

	_, err = f.orch.SubmitText(uuid.New(), domain.TextInput{Text: validText + " again"})
	assert.ErrorIs(t, err, domain.ErrTooManyJobs, "submissions beyond the cap are rejected")

	current, max := f.orch.InFlight()
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, max)

	close(release)
	waitTerminal(t, f.orch, first)
	f.orch.Close()

	// Capacity frees up once the job finishes.
	_, err = f.orch.SubmitText(uuid.New(), domain.TextInput{Text: validText + " later"})
	assert.NoError(t, err)
}
