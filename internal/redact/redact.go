// Package redact strips sensitive or internal detail from error messages
// before they are attached to a job record or pushed to subscribers.
// Subscribers only ever see the redacted form; full errors stay in the
// server-side logs.
package redact

import "regexp"

// Redaction placeholders
const (
	KeyPlaceholder   = "[REDACTED_KEY]"
	PathPlaceholder  = "[REDACTED_PATH]"
	HostPlaceholder  = "[REDACTED_HOST]"
	StackPlaceholder = "[STACK_TRACE_REDACTED]"
	EmailPlaceholder = "[REDACTED_EMAIL]"
)

var (
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|bearer|authorization)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)
	connStringRegex = regexp.MustCompile(`(?i)[a-z][a-z0-9+]*://[^@\s]+@[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`(/[\w.-]+){2,}`)
	stackTraceRegex = regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`)
	emailRegex      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	hostPortRegex   = regexp.MustCompile(
		`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`,
	)
)

var replacements = []struct {
	pattern     *regexp.Regexp
	placeholder string
}{
	{apiKeyRegex, KeyPlaceholder},
	{connStringRegex, HostPlaceholder},
	{stackTraceRegex, StackPlaceholder},
	{emailRegex, EmailPlaceholder},
	{hostPortRegex, HostPlaceholder},
	{unixPathRegex, PathPlaceholder},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range replacements {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
