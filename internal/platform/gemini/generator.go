// Package gemini adapts Google's Gemini API to the generation.Generator
// interface. It owns prompt construction, retry with backoff, and parsing of
// the model's JSON envelope into domain content.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/kestrelworks/sitegen-api/internal/domain"
	"github.com/kestrelworks/sitegen-api/internal/generation"
)

const defaultModel = "gemini-2.0-flash"

// promptTemplate is the instruction sent to the model. The response contract
// mirrors responseSchema below.
const promptTemplate = `You are a copywriter for healthcare practice websites.
Given the practice description below, produce website content as a single JSON
object with these keys:

  "hero": object with "headline" and "subheadline" strings
  "about": object with "title" and "text" strings
  "services": array of objects with "name" and "description" strings
  "contact": object with "cta" string
  "seo": object with "title", "description" and "keywords" (array of strings)
  "confidence": number between 0 and 1

The practice specialty is "{{.Specialty}}". Tailor tone and vocabulary to it.
Respond with JSON only, no surrounding prose.

Practice description:
{{.Text}}
`

// Config tunes the adapter.
type Config struct {
	APIKey    string
	Model     string // defaults to defaultModel
	MaxRetry  int    // retries after the first attempt, default 2
	BaseDelay time.Duration
}

// Generator is the Gemini-backed generation.Generator.
type Generator struct {
	client *genai.Client
	cfg    Config
	tmpl   *template.Template
	logger *slog.Logger
}

var _ generation.Generator = (*Generator)(nil)

// New creates a Gemini generator. The API key is required.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	tmpl, err := template.New("sitegen").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to parse prompt template: %w", err)
	}

	return &Generator{
		client: client,
		cfg:    cfg,
		tmpl:   tmpl,
		logger: logger.With("component", "gemini"),
	}, nil
}

// Generate implements generation.Generator. Transient API failures are
// retried with exponential backoff and jitter; malformed or blocked
// responses are returned immediately.
func (g *Generator) Generate(ctx context.Context, text, specialty string) (*domain.GeneratedContent, error) {
	prompt, err := g.buildPrompt(text, specialty)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetry; attempt++ {
		if attempt > 0 {
			// delay = base * 2^(attempt-1) * jitter in [0.5, 1.0)
			backoff := float64(g.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
			delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
			g.logger.Info("retrying generation call",
				"attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", generation.ErrUnavailable, ctx.Err())
			}
		}

		content, err := g.callOnce(ctx, prompt)
		if err == nil {
			return content, nil
		}
		lastErr = err

		// Parse and safety failures will not improve on retry.
		if errors.Is(err, generation.ErrInvalidResponse) || errors.Is(err, generation.ErrContentBlocked) {
			return nil, err
		}
		g.logger.Warn("generation call failed",
			"attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("%w: %v", generation.ErrUnavailable, lastErr)
}

func (g *Generator) buildPrompt(text, specialty string) (string, error) {
	var buf bytes.Buffer
	err := g.tmpl.Execute(&buf, struct {
		Text      string
		Specialty string
	}{Text: text, Specialty: specialty})
	if err != nil {
		return "", fmt.Errorf("gemini: failed to build prompt: %w", err)
	}
	return buf.String(), nil
}

func (g *Generator) callOnce(ctx context.Context, prompt string) (*domain.GeneratedContent, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: safety filter triggered", generation.ErrContentBlocked)
	}
	return parseEnvelope(resp.Text())
}

// responseSchema is the JSON contract the prompt asks the model to follow.
type responseSchema struct {
	Hero     map[string]any `json:"hero"`
	About    map[string]any `json:"about"`
	Services []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"services"`
	Contact    map[string]any `json:"contact"`
	SEO        map[string]any `json:"seo"`
	Confidence float64        `json:"confidence"`
}

// parseEnvelope decodes the model's JSON response, tolerating a markdown code
// fence around the object. Missing optional sections are allowed; a response
// with no usable section at all is invalid.
func parseEnvelope(raw string) (*domain.GeneratedContent, error) {
	payload := stripFence(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response body", generation.ErrInvalidResponse)
	}

	var schema responseSchema
	if err := json.Unmarshal([]byte(payload), &schema); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	content := &domain.GeneratedContent{
		HeroSection:     schema.Hero,
		AboutSection:    schema.About,
		ContactInfo:     schema.Contact,
		SEOMeta:         schema.SEO,
		ConfidenceScore: schema.Confidence,
	}
	for _, s := range schema.Services {
		if s.Name == "" {
			continue
		}
		content.Services = append(content.Services, domain.ServiceItem{
			Name:        s.Name,
			Description: s.Description,
		})
	}

	if content.HeroSection == nil && content.AboutSection == nil &&
		len(content.Services) == 0 && content.SEOMeta == nil {
		return nil, fmt.Errorf("%w: no recognizable sections", generation.ErrInvalidResponse)
	}
	return content, nil
}

// stripFence removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
