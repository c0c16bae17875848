// Package errors provides utilities for sanitizing errors and log-derived text
// so credentials never reach log files, the console or a remote AI backend.
package errors

import (
	"fmt"
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// redaction pairs a credential pattern with its replacement template.
type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactions are applied in order; more specific patterns come first.
var redactions = []redaction{
	// Anthropic API key: sk-ant-api03-... (min 10 chars after prefix)
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{10,}`), redactedPlaceholder},
	// Generic OpenAI-style keys (LM Studio deployments sometimes proxy these)
	{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{32,}`), redactedPlaceholder},
	// Telegram bot token: 123456789:ABC-DEF...
	{regexp.MustCompile(`\d{8,12}:[a-zA-Z0-9_-]{30,}`), redactedPlaceholder},
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`), redactedPlaceholder},
	{regexp.MustCompile(`(?i)authorization[:\s]+[^\s]+`), redactedPlaceholder},
	{regexp.MustCompile(`(?i)x-api-key[:\s]+[^\s]+`), redactedPlaceholder},
	{regexp.MustCompile(`(?i)api[_-]?key[=:][^\s&"']+`), redactedPlaceholder},
	// Basic-auth userinfo in URLs (referrers, proxy settings)
	{regexp.MustCompile(`(?i)\b(https?|ftp)://[^/\s:@"]+:[^/\s@"]+@`), "${1}://" + redactedPlaceholder + "@"},
	// Secrets carried in request query strings
	{regexp.MustCompile(`(?i)([?&;](?:password|passwd|pwd|token|access_token|auth|secret|sessionid|session)=)[^&;\s"]+`), "${1}" + redactedPlaceholder},
}

// SanitizeError wraps an error, redacting any credentials that may appear in the error message.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}

	sanitized := SanitizeString(err.Error())
	if sanitized == err.Error() {
		// Nothing to redact, keep the original chain intact
		return err
	}

	return &sanitizedError{
		original:  err,
		sanitized: sanitized,
	}
}

// SanitizeString redacts credential patterns from a string.
func SanitizeString(s string) string {
	result := s
	for _, r := range redactions {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Wrapf wraps an error with a formatted message, sanitizing any credentials in the underlying error.
// Use it instead of fmt.Errorf("...: %w", err) when err may carry an API key or bot token.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, SanitizeError(err))
}

// sanitizedError wraps an error with a sanitized message.
type sanitizedError struct {
	original  error
	sanitized string
}

func (e *sanitizedError) Error() string {
	return e.sanitized
}

func (e *sanitizedError) Unwrap() error {
	return e.original
}

// ContainsCredentials reports whether s appears to contain credentials.
func ContainsCredentials(s string) bool {
	for _, r := range redactions {
		if r.pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// MaskCredential partially masks a credential for safe display.
// Example: "sk-ant-api03-abc123..." -> "sk-ant-***..."
func MaskCredential(s string) string {
	if len(s) < 10 {
		return strings.Repeat("*", len(s))
	}

	if strings.HasPrefix(s, "sk-ant-") {
		return "sk-ant-***..."
	}

	// Telegram bot token format (number:token)
	if idx := strings.Index(s, ":"); idx > 0 && idx < 15 {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) == 2 && len(parts[0]) <= 12 {
			return parts[0] + ":***..."
		}
	}

	return s[:4] + "***..."
}
