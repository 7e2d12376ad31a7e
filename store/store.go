package store

import (
	"context"
	"errors"
	"time"

	"conductor/orchestrator"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of records that do not exist
var ErrNotFound = errors.New("not found")

// Bundle holds all stores of one session database
type Bundle struct {
	Sessions  SessionStore
	Runs      RunStore
	Archive   ArchiveStore
	Summaries SummaryStore
	Events    EventStore
	closer    func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// SessionStore tracks primary conversations, their messages and the agents
// they delegated to
type SessionStore interface {
	CreateSession(ctx context.Context, profile, model string) (id string, err error)
	CompleteSession(ctx context.Context, id string, err error) error
	GetSession(ctx context.Context, id string) (*SessionInfo, error)
	ListSessions(ctx context.Context, limit int) ([]SessionInfo, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) error
	GetMessages(ctx context.Context, sessionID string) ([]SessionMessage, error)
	UpsertAgent(ctx context.Context, sessionID string, rec orchestrator.AgentRecord) error
	ListAgents(ctx context.Context, sessionID string) ([]orchestrator.AgentRecord, error)
}

// SessionInfo describes a session
type SessionInfo struct {
	ID         string     `json:"id"`
	Profile    string     `json:"profile"`
	Model      string     `json:"model,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// SessionMessage represents a single message in a session
type SessionMessage struct {
	ID        int       `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session statuses
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// RunStore persists composed delegation rounds
type RunStore interface {
	orchestrator.RunStore
	ListRuns(ctx context.Context, sessionID string) ([]orchestrator.RunRecord, error)
}

// ArchiveStore keeps raw agent transcripts, append-only. GetTranscript
// returns the most recent one.
type ArchiveStore interface {
	orchestrator.Archive
}

// SummaryStore caches summaries by transcript checksum. GetSummary returns
// nil without error when nothing is cached.
type SummaryStore interface {
	orchestrator.SummaryCache
}

// EventStore persists runtime events for replay and history
type EventStore interface {
	StoreEvent(ctx context.Context, e orchestrator.Event) error
	ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]orchestrator.Event, error)
}

func generateID() string {
	return uuid.New().String()
}

// archiveRef names an archived transcript
func archiveRef(agentID, checksum string) string {
	if len(checksum) > 16 {
		checksum = checksum[:16]
	}
	return "transcript/" + agentID + "/" + checksum
}

func sessionStatus(err error) (status, msg string) {
	if err != nil {
		return SessionFailed, err.Error()
	}
	return SessionCompleted, ""
}
