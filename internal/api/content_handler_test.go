package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/sitegen-api/internal/api/middleware"
	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/mocks"
	"github.com/kestrelworks/sitegen-api/internal/pipeline"
)

const validSubmissionText = "We are a family dental clinic offering implants and teeth whitening."

type testServer struct {
	router    http.Handler
	orch      *pipeline.Orchestrator
	generator *mocks.Generator
}

func newTestServer(t *testing.T, mutate ...func(*pipeline.Config)) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	progressHub := hub.New(hub.NewInMemoryPublisher(logger), hub.DefaultConfig(), logger)
	contentCache := cache.New(nil, cache.Options{LocalCapacity: 100, DefaultTTL: time.Hour}, logger)

	cfg := pipeline.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	generator := mocks.NewGenerator()
	orch := pipeline.New(
		progressHub, contentCache, generator,
		mocks.NewTranscriber(), mocks.NewPersister(), cfg, logger)

	return &testServer{
		router:    NewRouter(orch, progressHub, contentCache, logger),
		orch:      orch,
		generator: generator,
	}
}

func (s *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, userID.String())
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// waitCompleted polls the status endpoint until the job is terminal.
func (s *testServer) waitCompleted(t *testing.T, userID uuid.UUID, requestID string) JobResponse {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		rec := s.do(t, http.MethodGet, "/api/content/jobs/"+requestID, userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var job JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		if job.Status.IsTerminal() {
			return job
		}

		select {
		case <-deadline:
			t.Fatal("job did not finish in time")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestSubmitText(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	rec := s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted JobAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RequestID)

	job := s.waitCompleted(t, userID, accepted.RequestID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, "dental", job.Result.Specialty)
}

func TestSubmitText_Rejections(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	t.Run("missing identity header", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/content/text", uuid.Nil,
			GenerateTextRequest{Text: validSubmissionText})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed identity header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/content/text", strings.NewReader("{}"))
		req.Header.Set(middleware.UserIDHeader, "not-a-uuid")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/content/text", strings.NewReader("{not json"))
		req.Header.Set(middleware.UserIDHeader, userID.String())
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty text", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/content/text", userID, GenerateTextRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("text below minimum length", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/content/text", userID,
			GenerateTextRequest{Text: "short"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp struct {
			Error   string `json:"error"`
			TraceID string `json:"trace_id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.NotEmpty(t, errResp.Error)
		assert.NotEmpty(t, errResp.TraceID, "error responses carry the trace id")
	})
}

func TestSubmitText_CapacityExhausted(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(c *pipeline.Config) { c.MaxConcurrent = 1 })
	userID := uuid.New()

	release := make(chan struct{})
	s.generator.GenerateFn = func(context.Context, string, string) (*domain.GeneratedContent, error) {
		<-release
		return &domain.GeneratedContent{}, nil
	}
	defer close(release)

	rec := s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText + " more"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSubmitAudio(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	rec := s.do(t, http.MethodPost, "/api/content/audio", userID,
		GenerateAudioRequest{Audio: bytes.Repeat([]byte{0xAB}, 256)})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted JobAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	job := s.waitCompleted(t, userID, accepted.RequestID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 6, job.TotalSteps)
}

func TestSubmitAudio_EmptyPayload(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/content/audio", uuid.New(), GenerateAudioRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	rec := s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted JobAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	s.waitCompleted(t, userID, accepted.RequestID)

	t.Run("unknown id", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/content/jobs/"+uuid.NewString(), userID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/content/jobs/not-a-uuid", userID, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("another user's job looks missing", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/content/jobs/"+accepted.RequestID, uuid.New(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/content/text", userID,
			GenerateTextRequest{Text: validSubmissionText, Refresh: true})
		require.Equal(t, http.StatusAccepted, rec.Code)
		var accepted JobAcceptedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
		s.waitCompleted(t, userID, accepted.RequestID)
	}

	rec := s.do(t, http.MethodGet, "/api/content/jobs/", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list JobListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rec = s.do(t, http.MethodGet, "/api/content/jobs/", uuid.New(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count, "listing is scoped to the caller")
}

func TestCancelJob(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	release := make(chan struct{})
	s.generator.GenerateFn = func(context.Context, string, string) (*domain.GeneratedContent, error) {
		<-release
		return &domain.GeneratedContent{}, nil
	}
	defer close(release)

	rec := s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted JobAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	t.Run("non-owner is rejected", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/content/jobs/"+accepted.RequestID, uuid.New(), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("owner cancels", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/content/jobs/"+accepted.RequestID, userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var job JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, domain.JobStatusCancelled, job.Status)
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/content/jobs/"+accepted.RequestID, userID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestStreamEvents_TerminalSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	rec := s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted JobAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	s.waitCompleted(t, userID, accepted.RequestID)

	// A subscription to an already finished job gets one snapshot and closes.
	rec = s.do(t, http.MethodGet, "/api/content/jobs/"+accepted.RequestID+"/events", userID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, `"status":"completed"`)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
}

func TestCacheEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	userID := uuid.New()

	// Populate the cache through a completed job.
	rec := s.do(t, http.MethodPost, "/api/content/text", userID,
		GenerateTextRequest{Text: validSubmissionText})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted JobAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	s.waitCompleted(t, userID, accepted.RequestID)

	t.Run("stats", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/cache/stats", userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var stats cache.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.LocalSize)
	})

	t.Run("invalidate requires a target", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/cache/invalidate", userID, InvalidateCacheRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalidate by pattern", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/cache/invalidate", userID,
			InvalidateCacheRequest{Pattern: "content:*"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp InvalidateCacheResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Invalidated)
	})

	t.Run("full flush", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/cache/invalidate", userID,
			InvalidateCacheRequest{All: true})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp InvalidateCacheResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Flushed)
	})
}
