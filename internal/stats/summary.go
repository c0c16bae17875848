package stats

import "github.com/olegiv/nginx-log-chat-go/internal/accesslog"

const (
	// SummaryTopN is how many clients and URLs go into a Summary.
	SummaryTopN = 3
	// TableTopN is how many clients and URLs the console tables show.
	TableTopN = 10
)

// Records is the read side of accesslog.Store used by the aggregators.
type Records interface {
	Len() int
	Each(fn func(accesslog.AccessRecord))
}

// Summary is the aggregate view sent to the reasoning backend.
type Summary struct {
	TotalRequests int    `json:"total_requests"`
	StatusCounts  Counts `json:"status_counts"`
	TopIPs        Counts `json:"top_ips"`
	TopURLs       Counts `json:"top_urls"`
}

// Tables is the wider view rendered on the console.
type Tables struct {
	StatusCounts Counts
	TopIPs       Counts
	TopURLs      Counts
}

// Summarize computes the summary of every record in the store.
func Summarize(store Records) Summary {
	return Summary{
		TotalRequests: store.Len(),
		StatusCounts:  StatusCounts(store),
		TopIPs:        TopClients(store, SummaryTopN),
		TopURLs:       TopURLs(store, SummaryTopN),
	}
}

// StatusCounts counts every distinct status, most frequent first, ties by
// ascending code.
func StatusCounts(store Records) Counts {
	t := newTally()
	store.Each(func(rec accesslog.AccessRecord) {
		t.add(string(rec.Status))
	})
	return t.byFrequencyThenKey()
}

// TopClients returns the n most frequent client addresses. Ties keep the
// order in which the addresses first appear in the store.
func TopClients(store Records, n int) Counts {
	return topBy(store, n, func(rec accesslog.AccessRecord) string {
		return rec.ClientAddress
	})
}

// TopURLs returns the n most frequent request URLs, ties by first appearance.
func TopURLs(store Records, n int) Counts {
	return topBy(store, n, func(rec accesslog.AccessRecord) string {
		return rec.URL
	})
}

// BuildTables computes the console tables: every status code plus the top
// ten clients and URLs.
func BuildTables(store Records) Tables {
	return Tables{
		StatusCounts: StatusCounts(store),
		TopIPs:       TopClients(store, TableTopN),
		TopURLs:      TopURLs(store, TableTopN),
	}
}

func topBy(store Records, n int, key func(accesslog.AccessRecord) string) Counts {
	t := newTally()
	store.Each(func(rec accesslog.AccessRecord) {
		t.add(key(rec))
	})
	return top(t.byFrequency(), n)
}
