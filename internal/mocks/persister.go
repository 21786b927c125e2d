package mocks

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// Persister is a configurable pipeline.Persister mock.
type Persister struct {
	SaveFn func(
		ctx context.Context,
		content *domain.GeneratedContent,
		originalInput string,
		userID uuid.UUID,
		meta map[string]any,
	) (string, error)

	calls atomic.Int32
}

// NewPersister returns a mock that saves successfully.
func NewPersister() *Persister {
	return &Persister{
		SaveFn: func(context.Context, *domain.GeneratedContent, string, uuid.UUID, map[string]any) (string, error) {
			return "doc-" + uuid.NewString(), nil
		},
	}
}

// Save calls SaveFn and records the call.
func (m *Persister) Save(
	ctx context.Context,
	content *domain.GeneratedContent,
	originalInput string,
	userID uuid.UUID,
	meta map[string]any,
) (string, error) {
	m.calls.Add(1)
	return m.SaveFn(ctx, content, originalInput, userID, meta)
}

// Calls reports how many times Save was invoked.
func (m *Persister) Calls() int {
	return int(m.calls.Load())
}
