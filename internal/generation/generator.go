// Package generation defines the boundary between the pipeline core and the
// external content-generation service. The pipeline depends only on the
// Generator interface; concrete adapters live under internal/platform.
package generation

import (
	"context"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// Generator produces site content from normalized input text and a detected
// specialty. Implementations may return a response with any optional section
// missing; callers must tolerate partial envelopes.
type Generator interface {
	// Generate creates site content for the given text and specialty.
	Generate(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error) {
	return f(ctx, text, specialty)
}
