package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conductor/orchestrator"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    profile TEXT NOT NULL,
    model TEXT,
    status TEXT DEFAULT 'running',
    error TEXT,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS session_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id);

CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    seq INTEGER NOT NULL,
    status TEXT NOT NULL,
    record BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_session ON agents(session_id);

CREATE TABLE IF NOT EXISTS runs (
    session_id TEXT NOT NULL,
    round INTEGER NOT NULL,
    composed_at DATETIME NOT NULL,
    payload BLOB NOT NULL,
    PRIMARY KEY (session_id, round)
);

CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id TEXT NOT NULL,
    checksum TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcripts_agent ON transcripts(agent_id);

CREATE TABLE IF NOT EXISTS summaries (
    checksum TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    body TEXT NOT NULL,
    archive_ref TEXT,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    round INTEGER NOT NULL,
    agent_id TEXT,
    payload BLOB NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Sessions:  &SQLiteSessionStore{db: db},
		Runs:      &SQLiteRunStore{db: db},
		Archive:   &SQLiteArchiveStore{db: db},
		Summaries: &SQLiteSummaryStore{db: db},
		Events:    &SQLiteEventStore{db: db},
		closer:    db.Close,
	}, nil
}

// =============================================================================
// SQLiteSessionStore
// =============================================================================

type SQLiteSessionStore struct {
	db *sql.DB
}

func (s *SQLiteSessionStore) CreateSession(ctx context.Context, profile, model string) (string, error) {
	id := generateID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, profile, model, started_at) VALUES (?, ?, ?, ?)`,
		id, profile, model, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *SQLiteSessionStore) CompleteSession(ctx context.Context, id string, err error) error {
	status, msg := sessionStatus(err)
	res, execErr := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, time.Now(), id,
	)
	if execErr != nil {
		return fmt.Errorf("complete session: %w", execErr)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteSessionStore) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, model, status, error, started_at, finished_at FROM sessions WHERE id = ?`, id)
	info, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return info, err
}

func (s *SQLiteSessionStore) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile, model, status, error, started_at, finished_at FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionInfo, error) {
	var info SessionInfo
	var model, errMsg sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&info.ID, &info.Profile, &model, &info.Status, &errMsg, &info.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	info.Model = model.String
	info.Error = errMsg.String
	if finishedAt.Valid {
		info.FinishedAt = &finishedAt.Time
	}
	return &info, nil
}

func (s *SQLiteSessionStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, time.Now(),
	)
	return err
}

func (s *SQLiteSessionStore) GetMessages(ctx context.Context, sessionID string) ([]SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM session_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []SessionMessage
	for rows.Next() {
		var m SessionMessage
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteSessionStore) UpsertAgent(ctx context.Context, sessionID string, rec orchestrator.AgentRecord) error {
	blob, err := encodeBlob(rec)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, session_id, seq, status, record)
		VALUES (?, ?, (SELECT COUNT(*) FROM agents WHERE session_id = ?), ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, record = excluded.record`,
		rec.AgentID, sessionID, sessionID, string(rec.Status), blob,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) ListAgents(ctx context.Context, sessionID string) ([]orchestrator.AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM agents WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orchestrator.AgentRecord
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var rec orchestrator.AgentRecord
		if err := decodeBlob(blob, &rec); err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// SQLiteRunStore
// =============================================================================

type SQLiteRunStore struct {
	db *sql.DB
}

func (s *SQLiteRunStore) SaveRun(ctx context.Context, run orchestrator.RunRecord) error {
	blob, err := encodeBlob(run)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (session_id, round, composed_at, payload) VALUES (?, ?, ?, ?)`,
		run.SessionID, run.Round, run.ComposedAt, blob,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, sessionID string) ([]orchestrator.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM runs WHERE session_id = ? ORDER BY round`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orchestrator.RunRecord
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var run orchestrator.RunRecord
		if err := decodeBlob(blob, &run); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// =============================================================================
// SQLiteArchiveStore
// =============================================================================

type SQLiteArchiveStore struct {
	db *sql.DB
}

func (s *SQLiteArchiveStore) PutTranscript(ctx context.Context, agentID, checksum, transcript string) (string, error) {
	blob, err := encodeBlob(transcriptBlob{AgentID: agentID, Checksum: checksum, Transcript: transcript})
	if err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (agent_id, checksum, payload, created_at) VALUES (?, ?, ?, ?)`,
		agentID, checksum, blob, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	return archiveRef(agentID, checksum), nil
}

func (s *SQLiteArchiveStore) GetTranscript(ctx context.Context, agentID string) (string, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM transcripts WHERE agent_id = ? ORDER BY id DESC LIMIT 1`, agentID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transcript for %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	var t transcriptBlob
	if err := decodeBlob(blob, &t); err != nil {
		return "", err
	}
	return t.Transcript, nil
}

// =============================================================================
// SQLiteSummaryStore
// =============================================================================

type SQLiteSummaryStore struct {
	db *sql.DB
}

func (s *SQLiteSummaryStore) GetSummary(ctx context.Context, checksum string) (*orchestrator.Summary, error) {
	var sum orchestrator.Summary
	var ref sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT checksum, agent_id, body, archive_ref, created_at FROM summaries WHERE checksum = ?`, checksum,
	).Scan(&sum.Checksum, &sum.AgentID, &sum.Body, &ref, &sum.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sum.ArchiveRef = ref.String
	return &sum, nil
}

func (s *SQLiteSummaryStore) PutSummary(ctx context.Context, sum orchestrator.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summaries (checksum, agent_id, body, archive_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		sum.Checksum, sum.AgentID, sum.Body, sum.ArchiveRef, sum.CreatedAt,
	)
	return err
}

// =============================================================================
// SQLiteEventStore
// =============================================================================

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) StoreEvent(ctx context.Context, e orchestrator.Event) error {
	blob, err := encodeBlob(e)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, kind, round, agent_id, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Kind), e.Round, e.Metadata.AgentID, blob, e.At,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]orchestrator.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE session_id = ? ORDER BY id LIMIT ? OFFSET ?`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orchestrator.Event
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var e orchestrator.Event
		if err := decodeBlob(blob, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
