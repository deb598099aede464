// Package transcript persists an append-only record of completed turns to
// SQLite, for audit and for replaying a session's history to clients.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	turn_no     INTEGER NOT NULL,
	created_at  TEXT    NOT NULL,
	student_msg TEXT    NOT NULL,
	reply       TEXT    NOT NULL,
	intent      TEXT    NOT NULL,
	specialists TEXT    NOT NULL,
	state_delta TEXT    NOT NULL,
	degraded    INTEGER NOT NULL DEFAULT 0,
	UNIQUE(session_id, turn_no)
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, turn_no);
`

// Turn is one recorded exchange.
type Turn struct {
	SessionID   string          `json:"session_id"`
	TurnNo      int             `json:"turn_no"`
	CreatedAt   time.Time       `json:"created_at"`
	StudentMsg  string          `json:"student_msg"`
	Reply       string          `json:"reply"`
	Intent      string          `json:"intent"`
	Specialists []string        `json:"specialists"`
	StateDelta  json.RawMessage `json:"state_delta,omitempty"`
	Degraded    bool            `json:"degraded,omitempty"`
}

// Store is the SQLite-backed transcript.
type Store struct {
	db *sql.DB
}

// Open opens or creates the transcript database at path and applies the
// schema. WAL mode keeps turn appends from blocking reads.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply transcript schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one completed turn.
func (s *Store) Append(ctx context.Context, t Turn) error {
	specialists, err := json.Marshal(t.Specialists)
	if err != nil {
		return fmt.Errorf("encode specialists: %w", err)
	}
	delta := t.StateDelta
	if len(delta) == 0 {
		delta = json.RawMessage("{}")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, turn_no, created_at, student_msg, reply, intent, specialists, state_delta, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.TurnNo, t.CreatedAt.Format(time.RFC3339Nano),
		t.StudentMsg, t.Reply, t.Intent, string(specialists), string(delta), boolToInt(t.Degraded))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ListBySession returns all recorded turns for a session, oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_no, created_at, student_msg, reply, intent, specialists, state_delta, degraded
		FROM turns WHERE session_id = ? ORDER BY turn_no`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t           Turn
			createdAt   string
			specialists string
			delta       string
			degraded    int
		)
		if err := rows.Scan(&t.SessionID, &t.TurnNo, &createdAt, &t.StudentMsg, &t.Reply, &t.Intent, &specialists, &delta, &degraded); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = ts
		}
		if err := json.Unmarshal([]byte(specialists), &t.Specialists); err != nil {
			return nil, fmt.Errorf("decode specialists: %w", err)
		}
		t.StateDelta = json.RawMessage(delta)
		t.Degraded = degraded != 0
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
