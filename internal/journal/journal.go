// Package journal keeps a transcript of the current chat session in an
// in-memory SQLite database. Nothing outlives the process.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/olegiv/nginx-log-chat-go/internal/logging"
)

// Journal records the turns of one session.
type Journal struct {
	db        *sql.DB
	sessionID string
	log       *logging.SecureLogger
}

// Turn is one question with its outcome.
type Turn struct {
	ID            int64
	AskedAt       time.Time
	Question      string
	Corrected     string // empty when spelling correction changed nothing
	ShowAnomalies bool
	ShowTables    bool
	Answer        string
	Failed        bool
	Provider      string
	InputTokens   int
	OutputTokens  int
	CostUSD       float64
	Duration      time.Duration
}

// Asked returns the question as it was dispatched.
func (t Turn) Asked() string {
	if t.Corrected != "" {
		return t.Corrected
	}
	return t.Question
}

// Totals aggregates the turns of a session.
type Totals struct {
	Turns        int
	Failed       int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

const (
	// memoryDSN is private to the connection that opens it.
	memoryDSN = ":memory:"
	// one connection, never recycled, or the in-memory database is lost
	maxOpenConns = 1

	currentSchemaVersion = 1
)

// New opens an empty journal and starts a session for the given source.
func New(source string, records int, log *logging.SecureLogger) (*Journal, error) {
	if log == nil {
		log = logging.NewNop()
	}

	db, err := sql.Open("sqlite", memoryDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{db: db, sessionID: uuid.NewString(), log: log}

	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if _, err := db.Exec(
		`INSERT INTO sessions (id, started_at, source, records) VALUES (?, ?, ?, ?)`,
		j.sessionID, time.Now().UTC().Format(time.RFC3339Nano), source, records,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	return j, nil
}

// SessionID identifies the session in logs.
func (j *Journal) SessionID() string {
	return j.sessionID
}

func (j *Journal) initSchema() error {
	if _, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	return j.migrateSchema(j.getSchemaVersion())
}

// getSchemaVersion returns the current schema version (0 if not set)
func (j *Journal) getSchemaVersion() int {
	var version int
	if err := j.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return 0
	}
	return version
}

func (j *Journal) migrateSchema(currentVersion int) error {
	if currentVersion >= currentSchemaVersion {
		return nil
	}

	j.log.Debug().
		Int("from", currentVersion).
		Int("to", currentSchemaVersion).
		Msg("journal: migrating schema")

	if currentVersion < 1 {
		if err := j.migrateV1(); err != nil {
			return fmt.Errorf("migration v1 failed: %w", err)
		}
	}

	if _, err := j.db.Exec(`DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	if _, err := j.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}

func (j *Journal) migrateV1() error {
	_, err := j.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		source TEXT NOT NULL,
		records INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		asked_at TEXT NOT NULL,
		question TEXT NOT NULL,
		corrected TEXT NOT NULL DEFAULT '',
		show_anomalies INTEGER NOT NULL DEFAULT 0,
		show_tables INTEGER NOT NULL DEFAULT 0,
		answer TEXT NOT NULL DEFAULT '',
		failed INTEGER NOT NULL DEFAULT 0,
		provider TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		cost_usd REAL DEFAULT 0.0,
		duration_ms INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);
	`)
	return err
}

// Record appends a turn and sets its ID. A zero AskedAt is set to now.
func (j *Journal) Record(turn *Turn) error {
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now()
	}

	result, err := j.db.Exec(`
		INSERT INTO turns (
			session_id, asked_at, question, corrected, show_anomalies, show_tables,
			answer, failed, provider, input_tokens, output_tokens, cost_usd, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		j.sessionID,
		turn.AskedAt.UTC().Format(time.RFC3339Nano),
		turn.Question,
		turn.Corrected,
		turn.ShowAnomalies,
		turn.ShowTables,
		turn.Answer,
		turn.Failed,
		turn.Provider,
		turn.InputTokens,
		turn.OutputTokens,
		turn.CostUSD,
		turn.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	turn.ID = id
	return nil
}

// Turns returns every turn of the session, oldest first.
func (j *Journal) Turns() ([]Turn, error) {
	rows, err := j.db.Query(`
		SELECT id, asked_at, question, corrected, show_anomalies, show_tables,
		       answer, failed, provider, input_tokens, output_tokens, cost_usd, duration_ms
		FROM turns
		WHERE session_id = ?
		ORDER BY id
	`, j.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			j.log.Warn().Err(err).Msg("journal: failed to close rows")
		}
	}()

	var turns []Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Questions returns the dispatched questions of the session, oldest first.
func (j *Journal) Questions() ([]string, error) {
	turns, err := j.Turns()
	if err != nil {
		return nil, err
	}
	questions := make([]string, len(turns))
	for i, t := range turns {
		questions[i] = t.Asked()
	}
	return questions, nil
}

// Totals sums token usage and cost across the session.
func (j *Journal) Totals() (Totals, error) {
	var t Totals
	err := j.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(failed), 0),
		       COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM turns
		WHERE session_id = ?
	`, j.sessionID).Scan(&t.Turns, &t.Failed, &t.InputTokens, &t.OutputTokens, &t.CostUSD)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to query totals: %w", err)
	}
	return t, nil
}

func scanTurn(rows *sql.Rows) (Turn, error) {
	var (
		t          Turn
		askedAt    string
		durationMS int64
	)
	err := rows.Scan(
		&t.ID, &askedAt, &t.Question, &t.Corrected, &t.ShowAnomalies, &t.ShowTables,
		&t.Answer, &t.Failed, &t.Provider, &t.InputTokens, &t.OutputTokens, &t.CostUSD, &durationMS,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("failed to scan row: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, askedAt)
	if err != nil {
		return Turn{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	t.AskedAt = ts
	t.Duration = time.Duration(durationMS) * time.Millisecond
	return t, nil
}

// Close releases the database; the transcript is gone afterwards.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
