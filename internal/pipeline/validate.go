package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kestrelworks/sitegen-api/internal/domain"
)

// normalizeText collapses runs of whitespace and trims the result, so that
// cosmetically different submissions of the same text share a cache key.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// validateText checks the submitted text against the configured bounds.
// Failures here happen before a tracker exists and surface immediately.
func (o *Orchestrator) validateText(input domain.TextInput) error {
	text := normalizeText(input.Text)

	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n < o.cfg.MinTextLength {
		return fmt.Errorf("%w: got %d characters, need at least %d",
			domain.ErrTextTooShort, n, o.cfg.MinTextLength)
	} else if n > o.cfg.MaxTextLength {
		return fmt.Errorf("%w: got %d characters, limit is %d",
			domain.ErrTextTooLong, n, o.cfg.MaxTextLength)
	}
	return nil
}

// validateAudio checks the submitted audio payload.
func (o *Orchestrator) validateAudio(input domain.AudioInput) error {
	if len(input.Audio) == 0 {
		return domain.ErrEmptyAudio
	}
	if len(input.Audio) > o.cfg.MaxAudioBytes {
		return fmt.Errorf("%w: got %d bytes, limit is %d",
			domain.ErrAudioTooLarge, len(input.Audio), o.cfg.MaxAudioBytes)
	}
	return nil
}
