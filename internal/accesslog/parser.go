package accesslog

import "regexp"

// combinedPattern is the combined log format grammar:
//
//	<addr> - <user> [<timestamp>] "<method> <url> <protocol>" <status> <size> "<referrer>" "<agent>"
//
// The match is searched anywhere in the line so syslog-style prefixes and
// trailing custom fields are tolerated.
var combinedPattern = regexp.MustCompile(
	`(\S+) - (\S+) \[([^\]]+)\] ` +
		`"(\S+) (\S+) (\S+)" ` +
		`(\d{3}) (\d+|-) ` +
		`"([^"]*)" "([^"]*)"`,
)

// Submatch indexes into combinedPattern.
const (
	groupAddr = iota + 1
	groupUser
	groupTimestamp
	groupMethod
	groupURL
	groupProtocol
	groupStatus
	groupSize
	groupReferrer
	groupAgent
)

// Parse turns one raw line into a record. A line that does not satisfy the
// grammar yields false; there is no error case.
func Parse(line string) (AccessRecord, bool) {
	m := combinedPattern.FindStringSubmatch(line)
	if m == nil {
		return AccessRecord{}, false
	}

	return AccessRecord{
		ClientAddress: m[groupAddr],
		RemoteUser:    m[groupUser],
		Timestamp:     m[groupTimestamp],
		Method:        m[groupMethod],
		URL:           m[groupURL],
		Protocol:      m[groupProtocol],
		Status:        StatusCode(m[groupStatus]),
		Size:          parseSize(m[groupSize]),
		Referrer:      m[groupReferrer],
		UserAgent:     m[groupAgent],
	}, true
}

// Parser parses numbered lines and keeps count of lines it had to drop.
type Parser struct {
	parsed  int
	dropped int
}

// NewParser creates a parser with zeroed counters.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses l and stamps the record with the line's position.
func (p *Parser) ParseLine(l Line) (AccessRecord, bool) {
	rec, ok := Parse(l.Text)
	if !ok {
		p.dropped++
		return AccessRecord{}, false
	}
	p.parsed++
	rec.Line = l.Number
	return rec, true
}

// Parsed returns how many lines matched the grammar.
func (p *Parser) Parsed() int {
	return p.parsed
}

// Dropped returns how many lines were silently skipped.
func (p *Parser) Dropped() int {
	return p.dropped
}
