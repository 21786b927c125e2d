// Package api provides the HTTP handlers for the service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/api/shared"
	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/pipeline"
	"github.com/kestrelworks/sitegen-api/internal/platform/logger"
)

// ContentHandler handles content generation HTTP requests.
type ContentHandler struct {
	orchestrator *pipeline.Orchestrator
	hub          *hub.Hub
	validator    *validator.Validate
	logger       *slog.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(o *pipeline.Orchestrator, h *hub.Hub, log *slog.Logger) *ContentHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ContentHandler")
	}
	return &ContentHandler{
		orchestrator: o,
		hub:          h,
		validator:    validator.New(),
		logger:       log.With(slog.String("component", "content_handler")),
	}
}

// SubmitText handles POST /content/text. It accepts the job and returns 202
// with the request id; progress is reported through the job endpoints.
func (h *ContentHandler) SubmitText(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req GenerateTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: text is required")
		return
	}

	requestID, err := h.orchestrator.SubmitText(userID, domain.TextInput{
		Text:      req.Text,
		Specialty: req.Specialty,
		Save:      req.Save,
		Refresh:   req.Refresh,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("text generation job accepted",
		slog.String("request_id", requestID.String()),
		slog.String("user_id", userID.String()),
		slog.Int("text_length", len(req.Text)))

	shared.RespondWithJSON(w, r, http.StatusAccepted, JobAcceptedResponse{
		RequestID: requestID.String(),
		Status:    string(domain.JobStatusInitializing),
	})
}

// SubmitAudio handles POST /content/audio.
func (h *ContentHandler) SubmitAudio(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req GenerateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request: audio is required")
		return
	}

	requestID, err := h.orchestrator.SubmitAudio(userID, domain.AudioInput{
		Audio:            req.Audio,
		Language:         req.Language,
		SpeakerLabels:    req.SpeakerLabels,
		ExpectedSpeakers: req.ExpectedSpeakers,
		Save:             req.Save,
		Refresh:          req.Refresh,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("audio generation job accepted",
		slog.String("request_id", requestID.String()),
		slog.String("user_id", userID.String()),
		slog.Int("audio_bytes", len(req.Audio)))

	shared.RespondWithJSON(w, r, http.StatusAccepted, JobAcceptedResponse{
		RequestID: requestID.String(),
		Status:    string(domain.JobStatusInitializing),
	})
}

// GetJob handles GET /content/jobs/{id}.
func (h *ContentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, requestID, ok := h.requireUserAndJobID(w, r)
	if !ok {
		return
	}

	job, found := h.orchestrator.Status(requestID)
	if !found {
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}
	if job.UserID != userID {
		// Indistinguishable from a missing job to avoid leaking job ids.
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, newJobResponse(job))
}

// ListJobs handles GET /content/jobs. Jobs are ordered most recent first.
func (h *ContentHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	jobs := h.orchestrator.JobsForUser(userID)
	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs)), Count: len(jobs)}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// CancelJob handles DELETE /content/jobs/{id}.
func (h *ContentHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, requestID, ok := h.requireUserAndJobID(w, r)
	if !ok {
		return
	}

	if err := h.orchestrator.Cancel(requestID, userID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("job cancelled",
		slog.String("request_id", requestID.String()),
		slog.String("user_id", userID.String()))

	job, _ := h.orchestrator.Status(requestID)
	shared.RespondWithJSON(w, r, http.StatusOK, newJobResponse(job))
}

// StreamEvents handles GET /content/jobs/{id}/events, streaming progress
// events over SSE until the job reaches a terminal state or the client
// disconnects.
func (h *ContentHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, requestID, ok := h.requireUserAndJobID(w, r)
	if !ok {
		return
	}

	job, found := h.orchestrator.Status(requestID)
	if !found || job.UserID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Subscribe before the initial snapshot so no update falls between them.
	events, cancel := h.hub.Subscribe(requestID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(eventType hub.EventType, payload any) bool {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error("failed to marshal SSE payload", "error", err)
			return false
		}
		if _, err := w.Write([]byte("event: " + string(eventType) + "\ndata: " + string(data) + "\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// Initial snapshot so late subscribers see the current state immediately.
	if !writeEvent(hub.EventProgress, newJobResponse(job)) {
		return
	}
	if job.Status.IsTerminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if !writeEvent(ev.Type, newJobResponse(ev.Job)) {
				return
			}
			if ev.Job.Status.IsTerminal() {
				return
			}
		}
	}
}

// requireUserAndJobID extracts the user from context and the job id from the
// path, writing the error response itself on failure.
func (h *ContentHandler) requireUserAndJobID(
	w http.ResponseWriter,
	r *http.Request,
) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, uuid.Nil, false
	}

	requestID, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, requestID, true
}

// getUserIDFromContext extracts the authenticated user's UUID placed in the
// context by the identity middleware.
func getUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, errors.New(paramName + " is required")
	}
	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, errors.New(paramName + " has invalid format")
	}
	return id, nil
}
