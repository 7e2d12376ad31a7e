package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conductor/orchestrator"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    profile TEXT NOT NULL,
    model TEXT,
    status TEXT DEFAULT 'running',
    error TEXT,
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_messages (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id);

CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    seq BIGSERIAL,
    status TEXT NOT NULL,
    record BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_session ON agents(session_id);

CREATE TABLE IF NOT EXISTS runs (
    session_id TEXT NOT NULL,
    round INTEGER NOT NULL,
    composed_at TIMESTAMPTZ NOT NULL,
    payload BYTEA NOT NULL,
    PRIMARY KEY (session_id, round)
);

CREATE TABLE IF NOT EXISTS transcripts (
    id BIGSERIAL PRIMARY KEY,
    agent_id TEXT NOT NULL,
    checksum TEXT NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcripts_agent ON transcripts(agent_id);

CREATE TABLE IF NOT EXISTS summaries (
    checksum TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    body TEXT NOT NULL,
    archive_ref TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    round INTEGER NOT NULL,
    agent_id TEXT,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
`

// NewPostgresBundle creates a Bundle backed by a pgx connection pool
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Sessions:  &PostgresSessionStore{pool: pool},
		Runs:      &PostgresRunStore{pool: pool},
		Archive:   &PostgresArchiveStore{pool: pool},
		Summaries: &PostgresSummaryStore{pool: pool},
		Events:    &PostgresEventStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// =============================================================================
// PostgresSessionStore
// =============================================================================

type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresSessionStore) CreateSession(ctx context.Context, profile, model string) (string, error) {
	id := generateID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, profile, model, started_at) VALUES ($1, $2, $3, $4)`,
		id, profile, model, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *PostgresSessionStore) CompleteSession(ctx context.Context, id string, err error) error {
	status, msg := sessionStatus(err)
	tag, execErr := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		status, msg, time.Now(), id,
	)
	if execErr != nil {
		return fmt.Errorf("complete session: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresSessionStore) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, profile, model, status, error, started_at, finished_at FROM sessions WHERE id = $1`, id)
	info, err := scanPgSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return info, err
}

func (s *PostgresSessionStore) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	query := `SELECT id, profile, model, status, error, started_at, finished_at FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		info, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

func scanPgSession(row pgx.Row) (*SessionInfo, error) {
	var info SessionInfo
	var model, errMsg *string
	if err := row.Scan(&info.ID, &info.Profile, &model, &info.Status, &errMsg, &info.StartedAt, &info.FinishedAt); err != nil {
		return nil, err
	}
	if model != nil {
		info.Model = *model
	}
	if errMsg != nil {
		info.Error = *errMsg
	}
	return &info, nil
}

func (s *PostgresSessionStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		sessionID, role, content, time.Now(),
	)
	return err
}

func (s *PostgresSessionStore) GetMessages(ctx context.Context, sessionID string) ([]SessionMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, created_at FROM session_messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []SessionMessage
	for rows.Next() {
		var m SessionMessage
		var id int64
		if err := rows.Scan(&id, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = int(id)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresSessionStore) UpsertAgent(ctx context.Context, sessionID string, rec orchestrator.AgentRecord) error {
	blob, err := encodeBlob(rec)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (id, session_id, status, record) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, record = EXCLUDED.record`,
		rec.AgentID, sessionID, string(rec.Status), blob,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) ListAgents(ctx context.Context, sessionID string) ([]orchestrator.AgentRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM agents WHERE session_id = $1 ORDER BY seq`, sessionID)
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
// PostgresRunStore
// =============================================================================

type PostgresRunStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresRunStore) SaveRun(ctx context.Context, run orchestrator.RunRecord) error {
	blob, err := encodeBlob(run)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (session_id, round, composed_at, payload) VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, round) DO UPDATE SET composed_at = EXCLUDED.composed_at, payload = EXCLUDED.payload`,
		run.SessionID, run.Round, run.ComposedAt, blob,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) ListRuns(ctx context.Context, sessionID string) ([]orchestrator.RunRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM runs WHERE session_id = $1 ORDER BY round`, sessionID)
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
// PostgresArchiveStore
// =============================================================================

type PostgresArchiveStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresArchiveStore) PutTranscript(ctx context.Context, agentID, checksum, transcript string) (string, error) {
	blob, err := encodeBlob(transcriptBlob{AgentID: agentID, Checksum: checksum, Transcript: transcript})
	if err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO transcripts (agent_id, checksum, payload, created_at) VALUES ($1, $2, $3, $4)`,
		agentID, checksum, blob, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	return archiveRef(agentID, checksum), nil
}

func (s *PostgresArchiveStore) GetTranscript(ctx context.Context, agentID string) (string, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM transcripts WHERE agent_id = $1 ORDER BY id DESC LIMIT 1`, agentID,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
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
// PostgresSummaryStore
// =============================================================================

type PostgresSummaryStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresSummaryStore) GetSummary(ctx context.Context, checksum string) (*orchestrator.Summary, error) {
	var sum orchestrator.Summary
	var ref *string
	err := s.pool.QueryRow(ctx,
		`SELECT checksum, agent_id, body, archive_ref, created_at FROM summaries WHERE checksum = $1`, checksum,
	).Scan(&sum.Checksum, &sum.AgentID, &sum.Body, &ref, &sum.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ref != nil {
		sum.ArchiveRef = *ref
	}
	return &sum, nil
}

func (s *PostgresSummaryStore) PutSummary(ctx context.Context, sum orchestrator.Summary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO summaries (checksum, agent_id, body, archive_ref, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (checksum) DO UPDATE SET body = EXCLUDED.body, archive_ref = EXCLUDED.archive_ref`,
		sum.Checksum, sum.AgentID, sum.Body, sum.ArchiveRef, sum.CreatedAt,
	)
	return err
}

// =============================================================================
// PostgresEventStore
// =============================================================================

type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresEventStore) StoreEvent(ctx context.Context, e orchestrator.Event) error {
	blob, err := encodeBlob(e)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (session_id, kind, round, agent_id, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.SessionID, string(e.Kind), e.Round, e.Metadata.AgentID, blob, e.At,
	)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]orchestrator.Event, error) {
	query := `SELECT payload FROM events WHERE session_id = $1 ORDER BY id OFFSET $2`
	args := []any{sessionID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
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
