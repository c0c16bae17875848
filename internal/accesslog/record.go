// Package accesslog parses NGINX/Apache "combined" access-log lines into
// structured records and holds the bounded, immutable snapshot a session
// answers questions about.
package accesslog

import (
	"encoding/json"
	"fmt"
)

// Sentinel is the literal placeholder for a field the server did not report.
const Sentinel = "-"

// Line is one raw line of the bounded snapshot with its 1-based position.
type Line struct {
	Number int
	Text   string
}

// StatusCode is the three-digit HTTP status exactly as logged.
// It stays a string so prefix checks never depend on numeric parsing.
type StatusCode string

// Class returns the status class, e.g. "5xx". Malformed codes return "".
func (s StatusCode) Class() string {
	if len(s) != 3 {
		return ""
	}
	return string(s[0]) + "xx"
}

// IsServerError reports whether the status starts with '5'.
func (s StatusCode) IsServerError() bool {
	return len(s) > 0 && s[0] == '5'
}

// IsClientError reports whether the status starts with '4'.
func (s StatusCode) IsClientError() bool {
	return len(s) > 0 && s[0] == '4'
}

// ResponseSize is a tagged body size: either a run of digits or unknown ("-").
// The zero value is unknown.
type ResponseSize struct {
	digits string
}

// SizeDigits returns a known size. An empty string yields an unknown size.
func SizeDigits(d string) ResponseSize {
	return ResponseSize{digits: d}
}

// UnknownSize returns the "-" size.
func UnknownSize() ResponseSize {
	return ResponseSize{}
}

func parseSize(raw string) ResponseSize {
	if raw == Sentinel {
		return UnknownSize()
	}
	return SizeDigits(raw)
}

// Known reports whether the server reported a size.
func (r ResponseSize) Known() bool {
	return r.digits != ""
}

// Digits returns the reported digits, or "" when unknown.
func (r ResponseSize) Digits() string {
	return r.digits
}

// String renders the size as it appears in the log.
func (r ResponseSize) String() string {
	if !r.Known() {
		return Sentinel
	}
	return r.digits
}

// MarshalJSON encodes the size as its log literal.
func (r ResponseSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// AccessRecord is a single parsed access-log entry. Every field holds the
// matched text verbatim; nothing is normalized.
type AccessRecord struct {
	ClientAddress string       `json:"ip"`
	RemoteUser    string       `json:"user"`
	Timestamp     string       `json:"date"`
	Method        string       `json:"method"`
	URL           string       `json:"url"`
	Protocol      string       `json:"protocol"`
	Status        StatusCode   `json:"status"`
	Size          ResponseSize `json:"size"`
	Referrer      string       `json:"referrer"`
	UserAgent     string       `json:"agent"`

	// Line is the position of the source line in the snapshot.
	Line int `json:"-"`
}

// User returns the remote user and whether one was reported.
func (r AccessRecord) User() (string, bool) {
	if r.RemoteUser == Sentinel {
		return "", false
	}
	return r.RemoteUser, true
}

// Format renders the record back into the combined log format.
func (r AccessRecord) Format() string {
	return fmt.Sprintf(`%s - %s [%s] "%s %s %s" %s %s "%s" "%s"`,
		r.ClientAddress, r.RemoteUser, r.Timestamp,
		r.Method, r.URL, r.Protocol,
		r.Status, r.Size,
		r.Referrer, r.UserAgent,
	)
}
