// Package chat runs the interactive question loop over a loaded access-log
// snapshot.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/olegiv/nginx-log-chat-go/internal/accesslog"
	"github.com/olegiv/nginx-log-chat-go/internal/ai"
	"github.com/olegiv/nginx-log-chat-go/internal/console"
	internalerrors "github.com/olegiv/nginx-log-chat-go/internal/errors"
	"github.com/olegiv/nginx-log-chat-go/internal/journal"
	"github.com/olegiv/nginx-log-chat-go/internal/logging"
	"github.com/olegiv/nginx-log-chat-go/internal/query"
	"github.com/olegiv/nginx-log-chat-go/internal/spelling"
	"github.com/olegiv/nginx-log-chat-go/internal/stats"
)

// HistoryCommand lists the questions asked so far.
const HistoryCommand = "/history"

// Asker answers a backend payload. *ai.Backend implements it.
type Asker interface {
	Ask(ctx context.Context, payload string) ai.Answer
}

// Config wires a session. Store, Backend and Console are required.
type Config struct {
	Store   stats.Records
	Backend Asker
	Console *console.Console
	// Provider names the backend in the journal.
	Provider string
	// Corrector is optional; nil disables spelling correction.
	Corrector *spelling.Corrector
	// Journal is optional; nil disables /history.
	Journal *journal.Journal
	Log     *logging.SecureLogger
}

// Session holds everything one chat needs. The store is never modified.
type Session struct {
	store     stats.Records
	backend   Asker
	console   *console.Console
	provider  string
	corrector *spelling.Corrector
	journal   *journal.Journal
	log       *logging.SecureLogger
}

// New creates a session. When a corrector is given it learns the words found
// in the snapshot's URLs and user agents so they are not "corrected".
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil || cfg.Backend == nil || cfg.Console == nil {
		return nil, fmt.Errorf("chat session needs a store, a backend and a console")
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewNop()
	}

	s := &Session{
		store:     cfg.Store,
		backend:   cfg.Backend,
		console:   cfg.Console,
		provider:  cfg.Provider,
		corrector: cfg.Corrector,
		journal:   cfg.Journal,
		log:       cfg.Log,
	}

	if s.corrector != nil {
		words := snapshotVocabulary(s.store)
		s.corrector.Learn(words...)
		s.log.Debug().Int("words", len(words)).Msg("Spelling vocabulary extended from snapshot")
	}
	return s, nil
}

// Run reads questions from in until exit, quit, EOF or ctx is done. Input is
// read by a separate goroutine so cancellation does not wait for a line.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go readLines(in, lines, readErr, done)

	for {
		s.console.Prompt()

		var line string
		select {
		case <-ctx.Done():
			s.finish("signal")
			return nil
		case l, ok := <-lines:
			if !ok {
				s.finish("eof")
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			line = l
		}

		question := strings.TrimSpace(line)
		switch {
		case question == "":
			continue
		case isExit(question):
			s.finish("exit")
			return nil
		case strings.EqualFold(question, HistoryCommand):
			s.showHistory()
			continue
		}

		s.Handle(ctx, question)
	}
}

// Handle answers one question: optional spelling correction, dispatch, the
// flagged panels, the backend call and the answer panel.
func (s *Session) Handle(ctx context.Context, question string) journal.Turn {
	turn := journal.Turn{AskedAt: time.Now(), Question: question, Provider: s.provider}

	asked := question
	if s.corrector != nil {
		if corrected := s.corrector.Correct(question); corrected != question {
			s.console.Corrected(corrected)
			turn.Corrected = corrected
			asked = corrected
		}
	}

	summary := stats.Summarize(s.store)
	anomalies := stats.Detect(s.store)

	decision, err := query.Dispatch(asked, summary, anomalies)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to build backend payload")
		turn.Answer = "Could not prepare the question for the AI backend."
		turn.Failed = true
		s.console.Answer(turn.Answer)
		s.record(&turn)
		return turn
	}
	turn.ShowAnomalies = decision.ShowAnomalies
	turn.ShowTables = decision.ShowTables

	if decision.ShowAnomalies {
		if err := s.console.Anomalies(anomalies); err != nil {
			s.log.Warn().Err(err).Msg("Failed to render anomalies")
		}
	}
	if decision.ShowTables {
		s.console.Tables(stats.BuildTables(s.store))
	}

	if internalerrors.ContainsCredentials(asked) {
		s.log.Warn().Msg("Question appears to contain a credential; it is sent to the backend unchanged")
	}
	s.log.Debug().
		Int("payload_tokens", query.EstimateTokens(decision.Payload)).
		Msg("Dispatching question")

	s.console.Status("Thinking...")
	start := time.Now()
	answer := s.backend.Ask(ctx, decision.Payload)
	turn.Duration = time.Since(start)

	turn.Answer = answer.Text
	turn.Failed = answer.Failed()
	if answer.Stats != nil {
		turn.InputTokens = answer.Stats.InputTokens
		turn.OutputTokens = answer.Stats.OutputTokens
		turn.CostUSD = answer.Stats.CostUSD
	}

	if answer.Failed() {
		s.log.Warn().Err(answer.Err).Dur("elapsed", turn.Duration).Msg("Backend call failed")
	} else {
		s.log.Info().
			Int("input_tokens", turn.InputTokens).
			Int("output_tokens", turn.OutputTokens).
			Dur("elapsed", turn.Duration).
			Bool("anomalies", decision.ShowAnomalies).
			Bool("tables", decision.ShowTables).
			Msg("Question answered")
	}

	s.console.Answer(answer.Text)
	s.record(&turn)
	return turn
}

func (s *Session) record(turn *journal.Turn) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(turn); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record turn")
	}
}

func (s *Session) showHistory() {
	if s.journal == nil {
		s.console.History(nil)
		return
	}
	questions, err := s.journal.Questions()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read history")
	}
	s.console.History(questions)
}

func (s *Session) finish(reason string) {
	s.console.Goodbye()

	if s.journal == nil {
		s.log.Info().Str("reason", reason).Msg("Session ended")
		return
	}
	totals, err := s.journal.Totals()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read session totals")
		return
	}
	s.log.Info().
		Str("reason", reason).
		Str("session", s.journal.SessionID()).
		Int("questions", totals.Turns).
		Int("failed", totals.Failed).
		Int("input_tokens", totals.InputTokens).
		Int("output_tokens", totals.OutputTokens).
		Float64("cost_usd", totals.CostUSD).
		Msg("Session ended")
}

func isExit(question string) bool {
	return strings.EqualFold(question, "exit") || strings.EqualFold(question, "quit")
}

// readLines sends every input line until EOF, a read error or done.
func readLines(in io.Reader, lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	defer close(lines)

	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-done:
				readErr <- nil
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			readErr <- err
			return
		}
	}
}

// snapshotVocabulary collects alphabetic words from URLs and user agents.
func snapshotVocabulary(store stats.Records) []string {
	seen := make(map[string]struct{})
	var words []string
	add := func(text string) {
		for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
			if len(w) < 4 {
				continue
			}
			w = strings.ToLower(w)
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	store.Each(func(rec accesslog.AccessRecord) {
		add(rec.URL)
		add(rec.UserAgent)
	})
	return words
}
