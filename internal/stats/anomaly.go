package stats

import (
	"encoding/json"

	"github.com/olegiv/nginx-log-chat-go/internal/accesslog"
)

// AnomalySet holds the detected anomaly indicators. Today the only indicator
// is the per-code count of server errors.
type AnomalySet struct {
	ServerErrors Counts
}

// Empty reports whether nothing anomalous was found.
func (a AnomalySet) Empty() bool {
	return len(a.ServerErrors) == 0
}

// MarshalJSON encodes the set as {} when empty and as
// {"5xx_errors": {...}} otherwise.
func (a AnomalySet) MarshalJSON() ([]byte, error) {
	if a.Empty() {
		return []byte("{}"), nil
	}
	return json.Marshal(struct {
		ServerErrors Counts `json:"5xx_errors"`
	}{a.ServerErrors})
}

// Detect groups the 5xx responses in the store by status code, ordered the
// same way as StatusCounts.
func Detect(store Records) AnomalySet {
	t := newTally()
	store.Each(func(rec accesslog.AccessRecord) {
		if rec.Status.IsServerError() {
			t.add(string(rec.Status))
		}
	})
	return AnomalySet{ServerErrors: t.byFrequencyThenKey()}
}
