// Package spelling corrects obvious typos in operator questions before they
// are matched against dispatch keywords. Only plain alphabetic words are
// touched: addresses, paths, status codes and acronyms pass through as typed.
//
// Candidates come from a github.com/sajari/fuzzy model trained on an English
// frequency list (english.txt) and on web-server vocabulary (words.txt).
// A word found in either list is never changed.
package spelling

import (
	"bufio"
	_ "embed"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sajari/fuzzy"
)

//go:embed english.txt
var englishList string

//go:embed words.txt
var domainList string

// minWordLength is the shortest word considered for correction.
const minWordLength = 4

// edge punctuation stripped before a field is judged
const edgePunct = `.,;:!?"'()[]{}`

var fieldPattern = regexp.MustCompile(`\S+`)

// inflections are suffixes accepted on top of a known stem.
var inflections = []string{"s", "es", "ed", "ing", "ly", "er", "est"}

// Corrector replaces unknown words with the closest vocabulary word.
type Corrector struct {
	model *fuzzy.Model
	size  int
	// domainWeight is added to the corpus count of domain and learned words
	// so they outrank general English at equal edit distance.
	domainWeight int
}

// New returns a corrector loaded with the built-in vocabularies.
func New() *Corrector {
	model := fuzzy.NewModel()
	model.SetUseAutocomplete(false)
	model.SetDepth(1)
	model.SetThreshold(0)

	c := &Corrector{model: model}

	maxCount := 0
	eachLine(englishList, func(line string) {
		word, count, ok := parseFrequency(line)
		if !ok {
			return
		}
		model.SetCount(word, count, true)
		c.size++
		maxCount = max(maxCount, count)
	})
	c.domainWeight = maxCount + 1

	eachLine(domainList, func(line string) {
		c.add(line)
	})
	return c
}

func eachLine(list string, fn func(line string)) {
	scanner := bufio.NewScanner(strings.NewReader(list))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(line)
	}
}

func parseFrequency(line string) (string, int, bool) {
	word, countText, ok := strings.Cut(line, " ")
	if !ok || !isWord(word) {
		return "", 0, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(countText))
	if err != nil || count <= 0 {
		return "", 0, false
	}
	return word, count, true
}

// Learn adds words to the vocabulary with domain weight. Non-alphabetic
// entries are ignored.
func (c *Corrector) Learn(words ...string) {
	for _, w := range words {
		c.add(w)
	}
}

func (c *Corrector) add(w string) {
	w = strings.ToLower(w)
	if !isWord(w) {
		return
	}
	current := c.count(w)
	if current >= c.domainWeight {
		return
	}
	// Suggestion keys are only built the first time a word is seen.
	c.model.SetCount(w, c.domainWeight+current, current == 0)
	if current == 0 {
		c.size++
	}
}

// count is the model frequency of w, 0 for unknown words.
func (c *Corrector) count(w string) int {
	c.model.RLock()
	defer c.model.RUnlock()
	if counts, ok := c.model.Data[w]; ok {
		return counts.Corpus
	}
	return 0
}

// Size returns the number of vocabulary words.
func (c *Corrector) Size() int {
	return c.size
}

// Known reports whether word, or its stem under a common inflection, is in
// the vocabulary.
func (c *Corrector) Known(word string) bool {
	w := strings.ToLower(word)
	if c.count(w) > 0 {
		return true
	}
	for _, suffix := range inflections {
		stem, ok := strings.CutSuffix(w, suffix)
		if !ok || stem == "" {
			continue
		}
		if c.count(stem) > 0 || c.count(stem+"e") > 0 {
			return true
		}
	}
	return false
}

// Correct returns text with misspelled words replaced. Whitespace and
// punctuation are preserved exactly; text without typos is returned unchanged.
func (c *Corrector) Correct(text string) string {
	return fieldPattern.ReplaceAllStringFunc(text, func(field string) string {
		start := strings.IndexFunc(field, func(r rune) bool { return !strings.ContainsRune(edgePunct, r) })
		if start < 0 {
			return field
		}
		end := strings.LastIndexFunc(field, func(r rune) bool { return !strings.ContainsRune(edgePunct, r) })
		_, size := utf8.DecodeRuneInString(field[end:])
		core := field[start : end+size]

		fixed, ok := c.correctWord(core)
		if !ok {
			return field
		}
		return field[:start] + fixed + field[end+size:]
	})
}

func (c *Corrector) correctWord(word string) (string, bool) {
	if len(word) < minWordLength || !isWord(strings.ToLower(word)) || isUpper(word) {
		return "", false
	}
	if c.Known(word) {
		return "", false
	}

	suggestion, ok := c.suggest(strings.ToLower(word))
	if !ok {
		return "", false
	}

	first, _ := utf8.DecodeRuneInString(word)
	if unicode.IsUpper(first) {
		suggestion = strings.ToUpper(suggestion[:1]) + suggestion[1:]
	}
	return suggestion, true
}

type candidate struct {
	term  string
	dist  int
	score int
}

// suggest picks the closest candidate within the allowed edit distance.
// Closer wins, then the more frequent word, then the alphabetically first.
func (c *Corrector) suggest(word string) (string, bool) {
	maxDist := 1
	if len(word) >= 8 {
		maxDist = 2
	}

	w := []rune(word)
	var candidates []candidate
	for term, pot := range c.model.Potentials(word, true) {
		if term == word || len(term) < minWordLength-1 {
			continue
		}
		d := distance(w, []rune(term))
		if d > maxDist {
			continue
		}
		candidates = append(candidates, candidate{term: term, dist: d, score: pot.Score})
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.term < b.term
	})
	return candidates[0].term, true
}

// distance is the optimal string alignment distance: insertions, deletions,
// substitutions and adjacent transpositions each cost one.
func distance(a, b []rune) int {
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				cur[j] = min(cur[j], prev2[j-2]+1)
			}
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}

// isWord reports whether s is a non-empty run of ASCII letters. The fuzzy
// model measures distance in bytes, so other scripts are left alone.
func isWord(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i] | 0x20
		if ch < 'a' || ch > 'z' {
			return false
		}
	}
	return s != ""
}

func isUpper(s string) bool {
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
