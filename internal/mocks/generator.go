// Package mocks provides shared collaborator mocks for tests. Behavior is
// customized through function fields, following the same pattern as the rest
// of the test helpers.
package mocks

import (
	"context"
	"sync/atomic"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// Generator is a configurable generation.Generator mock that counts calls.
type Generator struct {
	GenerateFn func(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error)
	calls      atomic.Int32
}

// NewGenerator returns a mock producing a minimal successful envelope.
func NewGenerator() *Generator {
	return &Generator{
		GenerateFn: func(_ context.Context, text, specialty string) (*domain.GeneratedContent, error) {
			return &domain.GeneratedContent{
				HeroSection:  map[string]any{"headline": "Welcome"},
				AboutSection: map[string]any{"text": text},
				Services: []domain.ServiceItem{
					{Name: "Consultation"},
				},
				SEOMeta:         map[string]any{"title": specialty + " practice"},
				ConfidenceScore: 0.9,
			}, nil
		},
	}
}

// Generate calls GenerateFn and records the call.
func (m *Generator) Generate(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error) {
	m.calls.Add(1)
	return m.GenerateFn(ctx, text, specialty)
}

// Calls reports how many times Generate was invoked.
func (m *Generator) Calls() int {
	return int(m.calls.Load())
}
