package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/olegiv/nginx-log-chat-go/internal/stats"
)

// Section headers of the backend payload. The order never changes.
const (
	preamble       = "You are an AI assistant analyzing NGINX logs."
	summaryHeader  = "Summary:"
	anomalyHeader  = "Anomalies:"
	questionHeader = "Please answer the question briefly and clearly:"
)

// PromptBuilder renders the fixed-structure backend payload.
type PromptBuilder struct{}

// NewPromptBuilder creates a new payload builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// Build embeds the summary, the anomalies and the verbatim question into the
// payload template. Keys of the statistics come straight from the log and
// are sanitized one by one before serialization, so a key carrying
// invisible characters or role markers reads differently than in Summarize,
// and keys that sanitize to the same text are merged. The question is sent
// as typed.
func (p *PromptBuilder) Build(question string, summary stats.Summary, anomalies stats.AnomalySet) (string, error) {
	view := stats.Summary{
		TotalRequests: summary.TotalRequests,
		StatusCounts:  sanitizeCounts(summary.StatusCounts),
		TopIPs:        sanitizeCounts(summary.TopIPs),
		TopURLs:       sanitizeCounts(summary.TopURLs),
	}
	summaryJSON, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize summary: %w", err)
	}

	anomalyView := stats.AnomalySet{ServerErrors: sanitizeCounts(anomalies.ServerErrors)}
	anomalyJSON, err := json.MarshalIndent(anomalyView, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize anomalies: %w", err)
	}

	var prompt strings.Builder

	prompt.WriteString(preamble)
	prompt.WriteString("\n")
	prompt.WriteString(summaryHeader)
	prompt.WriteString("\n")
	prompt.Write(summaryJSON)
	prompt.WriteString("\n")
	prompt.WriteString(anomalyHeader)
	prompt.WriteString("\n")
	prompt.Write(anomalyJSON)
	prompt.WriteString("\n\n")
	prompt.WriteString(questionHeader)
	prompt.WriteString("\n")
	prompt.WriteString(question)
	prompt.WriteString("\n")

	return prompt.String(), nil
}

// promptInjectionPatterns contains regex patterns for common prompt injection attempts
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*prompt\s*:`),
}

// roleMarkerPattern matches chat role markers. A marker right after a slash
// is a path segment such as /api/user:42 and is left alone.
var roleMarkerPattern = regexp.MustCompile(`(?i)(^|[^/\w])(ASSISTANT|HUMAN|USER|SYSTEM)\s*:`)

const filtered = "[FILTERED]"

// sanitizeCounts sanitizes every key, merging keys that become equal into
// the first occurrence.
func sanitizeCounts(counts stats.Counts) stats.Counts {
	if counts == nil {
		return nil
	}
	out := make(stats.Counts, 0, len(counts))
	index := make(map[string]int, len(counts))
	for _, c := range counts {
		key := sanitizeKey(c.Key)
		if i, ok := index[key]; ok {
			out[i].N += c.N
			continue
		}
		index[key] = len(out)
		out = append(out, stats.Count{Key: key, N: c.N})
	}
	return out
}

// sanitizeKey renders non-printable runes as visible escapes, so distinct
// keys stay distinct, and filters injection text.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r <= 0xFFFF:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return filterInjections(b.String())
}

// filterInjections replaces injection phrases and role markers with a
// placeholder. Role markers are replaced until none is left, since a
// replacement can expose the next one.
func filterInjections(text string) string {
	for _, pattern := range promptInjectionPatterns {
		text = pattern.ReplaceAllString(text, filtered)
	}
	for {
		next := roleMarkerPattern.ReplaceAllString(text, "${1}"+filtered)
		if next == text {
			return text
		}
		text = next
	}
}

// EstimateTokens estimates the number of tokens in the content.
// Uses the algorithm: max(chars/4, words/0.75)
func EstimateTokens(content string) int {
	chars := len(content)
	words := len(strings.Fields(content))

	charsEstimate := chars / 4
	wordsEstimate := int(float64(words) / 0.75)

	if charsEstimate > wordsEstimate {
		return charsEstimate
	}
	return wordsEstimate
}
