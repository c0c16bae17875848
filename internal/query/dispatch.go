// Package query decides which computed views are relevant to a free-text
// question and assembles the payload sent to the reasoning backend.
package query

import (
	"strings"

	"github.com/olegiv/nginx-log-chat-go/internal/stats"
)

// anomalyKeyword turns on the anomaly panel.
const anomalyKeyword = "anomaly"

// tableKeywords turn on the status/IP/URL tables. Matching is by substring,
// so "zip" or "stop" also match.
var tableKeywords = []string{"status", "ip", "url", "table", "top"}

// Decision tells the caller what to display and what to send.
type Decision struct {
	ShowAnomalies bool
	ShowTables    bool
	Payload       string
}

// Dispatch inspects the question and builds the backend payload. It has no
// side effects; display and backend invocation are up to the caller.
func Dispatch(question string, summary stats.Summary, anomalies stats.AnomalySet) (Decision, error) {
	lower := strings.ToLower(question)

	payload, err := NewPromptBuilder().Build(question, summary, anomalies)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		ShowAnomalies: strings.Contains(lower, anomalyKeyword),
		ShowTables:    containsAny(lower, tableKeywords),
		Payload:       payload,
	}, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
