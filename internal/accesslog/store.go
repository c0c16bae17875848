package accesslog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultLimit is how many trailing lines of the log are consulted.
const DefaultLimit = 500

var (
	// ErrSourceUnavailable is returned when the log file is missing or unreadable.
	ErrSourceUnavailable = errors.New("access log unavailable")

	// ErrEmptyStore is reported when the source was readable but no line matched.
	ErrEmptyStore = errors.New("no access log entries parsed")
)

// Store is the ordered, read-only set of records parsed from the snapshot.
// It is never mutated after Load returns, so it can be shared freely.
type Store struct {
	records []AccessRecord
	scanned int
	dropped int
}

// Load parses at most the last limit lines. Unparseable lines are dropped and
// the relative order of the survivors is preserved. limit <= 0 keeps every line.
func Load(lines []string, limit int) *Store {
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	numbered := make([]Line, len(lines))
	for i, text := range lines {
		numbered[i] = Line{Number: i + 1, Text: text}
	}
	return build(numbered)
}

// LoadReader streams r line by line, keeping only the trailing limit lines
// in memory. Lines may be arbitrarily long.
func LoadReader(r io.Reader, limit int) (*Store, error) {
	ring := newLineRing(limit)
	br := bufio.NewReader(r)

	for {
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			ring.push(strings.TrimRight(text, "\r\n"))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read failed: %w", ErrSourceUnavailable, err)
		}
	}

	return build(ring.lines()), nil
}

// LoadFile reads the trailing limit lines of path. When the file is larger
// than maxBytes only its last maxBytes are read; the first line of that
// window is discarded unless the window starts exactly on a line boundary.
// maxBytes <= 0 disables the bound.
func LoadFile(path string, limit int, maxBytes int64) (*Store, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file not found: %s", ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("%w: failed to stat %s: %v", ErrSourceUnavailable, path, err)
	}

	if fileInfo.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrSourceUnavailable, path, err)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	if maxBytes > 0 && fileInfo.Size() > maxBytes {
		offset := fileInfo.Size() - maxBytes
		partial, err := startsMidLine(f, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %w", ErrSourceUnavailable, path, err)
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: failed to seek %s: %v", ErrSourceUnavailable, path, err)
		}
		br := bufio.NewReader(f)
		if partial {
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				return nil, fmt.Errorf("%w: failed to read %s: %w", ErrSourceUnavailable, path, err)
			}
		}
		src = br
	}

	return LoadReader(src, limit)
}

// startsMidLine reports whether offset falls inside a line, that is, the
// byte before it is not a newline.
func startsMidLine(f io.ReaderAt, offset int64) (bool, error) {
	if offset == 0 {
		return false, nil
	}
	var prev [1]byte
	if _, err := f.ReadAt(prev[:], offset-1); err != nil {
		return false, err
	}
	return prev[0] != '\n', nil
}

func build(lines []Line) *Store {
	p := NewParser()
	records := make([]AccessRecord, 0, len(lines))
	for _, l := range lines {
		if rec, ok := p.ParseLine(l); ok {
			records = append(records, rec)
		}
	}

	return &Store{
		records: records,
		scanned: len(lines),
		dropped: p.Dropped(),
	}
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// At returns the i-th record in input order.
func (s *Store) At(i int) AccessRecord {
	return s.records[i]
}

// Records returns a copy of all records in input order.
func (s *Store) Records() []AccessRecord {
	out := make([]AccessRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Each calls fn for every record in input order.
func (s *Store) Each(fn func(AccessRecord)) {
	for _, rec := range s.records {
		fn(rec)
	}
}

// Scanned returns how many snapshot lines were consulted.
func (s *Store) Scanned() int {
	return s.scanned
}

// Dropped returns how many snapshot lines failed the grammar.
func (s *Store) Dropped() int {
	return s.dropped
}

// lineRing keeps the most recent n lines pushed into it.
type lineRing struct {
	buf   []string
	next  int
	limit int
}

func newLineRing(limit int) *lineRing {
	return &lineRing{limit: limit}
}

func (r *lineRing) push(s string) {
	if r.limit <= 0 || len(r.buf) < r.limit {
		r.buf = append(r.buf, s)
		return
	}
	r.buf[r.next] = s
	r.next = (r.next + 1) % r.limit
}

// lines returns the kept lines oldest first, numbered within the snapshot.
func (r *lineRing) lines() []Line {
	out := make([]Line, 0, len(r.buf))
	for i := 0; i < len(r.buf); i++ {
		idx := i
		if r.limit > 0 && len(r.buf) == r.limit {
			idx = (r.next + i) % r.limit
		}
		out = append(out, Line{Number: i + 1, Text: r.buf[idx]})
	}
	return out
}
