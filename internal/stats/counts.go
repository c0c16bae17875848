// Package stats computes aggregate statistics and anomaly indicators over an
// access-log snapshot. Every function is pure and deterministic: the same
// store always yields the same, identically ordered, result.
package stats

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Count is one key with its number of occurrences.
type Count struct {
	Key string
	N   int
}

// Counts is an ordered list of counts. It marshals to a JSON object whose
// keys appear in slice order.
type Counts []Count

// Get returns the count for key, or 0.
func (c Counts) Get(key string) int {
	for _, e := range c {
		if e.Key == key {
			return e.N
		}
	}
	return 0
}

// Keys returns the keys in order.
func (c Counts) Keys() []string {
	keys := make([]string, len(c))
	for i, e := range c {
		keys[i] = e.Key
	}
	return keys
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	var total int
	for _, e := range c {
		total += e.N
	}
	return total
}

// MarshalJSON encodes the counts as an object preserving order.
func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(e.N))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// tally counts keys keeping track of first appearance.
type tally struct {
	index map[string]int
	order Counts
}

func newTally() *tally {
	return &tally{index: make(map[string]int)}
}

func (t *tally) add(key string) {
	if i, ok := t.index[key]; ok {
		t.order[i].N++
		return
	}
	t.index[key] = len(t.order)
	t.order = append(t.order, Count{Key: key, N: 1})
}

// byFrequency returns the counts sorted by count descending, ties kept in
// first-seen order.
func (t *tally) byFrequency() Counts {
	out := make(Counts, len(t.order))
	copy(out, t.order)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].N > out[j].N
	})
	return out
}

// byFrequencyThenKey returns the counts sorted by count descending, ties by
// ascending key.
func (t *tally) byFrequencyThenKey() Counts {
	out := make(Counts, len(t.order))
	copy(out, t.order)
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func top(c Counts, n int) Counts {
	if n >= 0 && len(c) > n {
		return c[:n]
	}
	return c
}
