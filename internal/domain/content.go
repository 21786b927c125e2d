package domain

import "time"

// InputType distinguishes the two submission kinds the pipeline accepts.
type InputType string

// Possible input types
const (
	InputTypeText  InputType = "text"
	InputTypeAudio InputType = "audio"
)

// TextInput is a raw-text submission.
type TextInput struct {
	Text      string
	Specialty string // optional hint; detected from the text when empty
	Save      bool   // persist the generated document when a persister is wired
	Refresh   bool   // bypass the cache probe and force regeneration
}

// AudioInput is an audio-recording submission.
type AudioInput struct {
	Audio            []byte
	Language         string
	SpeakerLabels    bool
	ExpectedSpeakers int
	Save             bool
	Refresh          bool
}

// GeneratedContent is the envelope returned by the generation collaborator.
// Any section may be absent; callers must tolerate partial responses.
type GeneratedContent struct {
	HeroSection     map[string]any `json:"hero_section,omitempty"`
	AboutSection    map[string]any `json:"about_section,omitempty"`
	Services        []ServiceItem  `json:"services,omitempty"`
	ContactInfo     map[string]any `json:"contact_info,omitempty"`
	SEOMeta         map[string]any `json:"seo_meta,omitempty"`
	ConfidenceScore float64        `json:"confidence_score,omitempty"`
	FallbackUsed    bool           `json:"fallback_used,omitempty"`
}

// ServiceItem is one offered service extracted from the input.
type ServiceItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SectionSummary counts what the generator actually produced.
type SectionSummary struct {
	HasHero      bool `json:"has_hero"`
	HasAbout     bool `json:"has_about"`
	ServiceCount int  `json:"service_count"`
	HasContact   bool `json:"has_contact"`
	HasSEO       bool `json:"has_seo"`
}

// Summarize builds a structural summary of the generated content.
func (g *GeneratedContent) Summarize() SectionSummary {
	return SectionSummary{
		HasHero:      len(g.HeroSection) > 0,
		HasAbout:     len(g.AboutSection) > 0,
		ServiceCount: len(g.Services),
		HasContact:   len(g.ContactInfo) > 0,
		HasSEO:       len(g.SEOMeta) > 0,
	}
}

// ContentResult is the final payload attached to a completed job.
type ContentResult struct {
	Content   *GeneratedContent `json:"content"`
	Summary   SectionSummary    `json:"summary"`
	Specialty string            `json:"specialty"`
	CacheKey  string            `json:"cache_key"`
	Cached    bool              `json:"cached"`

	// DocumentID is set when the persistence collaborator saved the result.
	DocumentID string `json:"document_id,omitempty"`

	// Warning carries non-fatal problems such as a persistence failure on an
	// otherwise successful generation.
	Warning string `json:"warning,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Transcript is the outcome of the transcription collaborator, cached by
// audio content hash so identical audio skips the transcription stage.
type Transcript struct {
	Text            string         `json:"text"`
	Confidence      float64        `json:"confidence"`
	Speakers        []string       `json:"speakers,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	QualityMetrics  map[string]any `json:"quality_metrics,omitempty"`
}
