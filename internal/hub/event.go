package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// EventType identifies the kind of progress event.
type EventType string

// Possible event types
const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Event is the envelope pushed to subscribers on every tracker update. It
// carries a full job snapshot so a subscriber sees the same shape a status
// poll would return.
type Event struct {
	Type       EventType             `json:"type"`
	RequestID  uuid.UUID             `json:"request_id"`
	UserID     uuid.UUID             `json:"user_id"`
	Job        *domain.ProcessingJob `json:"job"`
	ETASeconds *float64              `json:"eta_seconds,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// JobTopic is the topic scoped to a single request id, usable by a client
// that knows only the id.
func JobTopic(requestID uuid.UUID) string {
	return "job:" + requestID.String()
}

// UserTopic is the direct-push topic for a job's owning user.
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}
