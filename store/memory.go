package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"conductor/orchestrator"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores.
// Runs, transcripts and events are kept encoded, the same way the SQL
// backends store them.
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Sessions:  &MemorySessionStore{sessions: make(map[string]*memSession)},
		Runs:      &MemoryRunStore{runs: make(map[string]map[int][]byte)},
		Archive:   &MemoryArchiveStore{transcripts: make(map[string][][]byte)},
		Summaries: &MemorySummaryStore{summaries: make(map[string]orchestrator.Summary)},
		Events:    &MemoryEventStore{events: make(map[string][][]byte)},
	}
}

// =============================================================================
// MemorySessionStore
// =============================================================================

type memSession struct {
	info       SessionInfo
	messages   []SessionMessage
	agents     map[string]orchestrator.AgentRecord
	agentOrder []string
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	order    []string
}

func (s *MemorySessionStore) CreateSession(ctx context.Context, profile, model string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateID()
	s.sessions[id] = &memSession{
		info: SessionInfo{
			ID:        id,
			Profile:   profile,
			Model:     model,
			Status:    SessionRunning,
			StartedAt: time.Now(),
		},
		agents: make(map[string]orchestrator.AgentRecord),
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemorySessionStore) CompleteSession(ctx context.Context, id string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	now := time.Now()
	sess.info.Status, sess.info.Error = sessionStatus(err)
	sess.info.FinishedAt = &now
	return nil
}

func (s *MemorySessionStore) GetSession(ctx context.Context, id string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	info := sess.info
	return &info, nil
}

// ListSessions returns the most recent sessions first
func (s *MemorySessionStore) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SessionInfo
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.sessions[s.order[i]].info)
	}
	return out, nil
}

func (s *MemorySessionStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	sess.messages = append(sess.messages, SessionMessage{
		ID:        len(sess.messages) + 1,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemorySessionStore) GetMessages(ctx context.Context, sessionID string) ([]SessionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return append([]SessionMessage(nil), sess.messages...), nil
}

func (s *MemorySessionStore) UpsertAgent(ctx context.Context, sessionID string, rec orchestrator.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if _, exists := sess.agents[rec.AgentID]; !exists {
		sess.agentOrder = append(sess.agentOrder, rec.AgentID)
	}
	sess.agents[rec.AgentID] = rec
	return nil
}

func (s *MemorySessionStore) ListAgents(ctx context.Context, sessionID string) ([]orchestrator.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	out := make([]orchestrator.AgentRecord, 0, len(sess.agentOrder))
	for _, id := range sess.agentOrder {
		out = append(out, sess.agents[id])
	}
	return out, nil
}

// =============================================================================
// MemoryRunStore
// =============================================================================

type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[string]map[int][]byte
}

func (s *MemoryRunStore) SaveRun(ctx context.Context, run orchestrator.RunRecord) error {
	blob, err := encodeBlob(run)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[run.SessionID] == nil {
		s.runs[run.SessionID] = make(map[int][]byte)
	}
	s.runs[run.SessionID][run.Round] = blob
	return nil
}

func (s *MemoryRunStore) ListRuns(ctx context.Context, sessionID string) ([]orchestrator.RunRecord, error) {
	s.mu.Lock()
	blobs := make([][]byte, 0, len(s.runs[sessionID]))
	for _, b := range s.runs[sessionID] {
		blobs = append(blobs, b)
	}
	s.mu.Unlock()

	out := make([]orchestrator.RunRecord, 0, len(blobs))
	for _, b := range blobs {
		var run orchestrator.RunRecord
		if err := decodeBlob(b, &run); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, run)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

// =============================================================================
// MemoryArchiveStore
// =============================================================================

type MemoryArchiveStore struct {
	mu          sync.Mutex
	transcripts map[string][][]byte
}

func (s *MemoryArchiveStore) PutTranscript(ctx context.Context, agentID, checksum, transcript string) (string, error) {
	blob, err := encodeBlob(transcriptBlob{AgentID: agentID, Checksum: checksum, Transcript: transcript})
	if err != nil {
		return "", fmt.Errorf("archive transcript: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[agentID] = append(s.transcripts[agentID], blob)
	return archiveRef(agentID, checksum), nil
}

func (s *MemoryArchiveStore) GetTranscript(ctx context.Context, agentID string) (string, error) {
	s.mu.Lock()
	blobs := s.transcripts[agentID]
	s.mu.Unlock()

	if len(blobs) == 0 {
		return "", fmt.Errorf("transcript for %s: %w", agentID, ErrNotFound)
	}
	var t transcriptBlob
	if err := decodeBlob(blobs[len(blobs)-1], &t); err != nil {
		return "", err
	}
	return t.Transcript, nil
}

// =============================================================================
// MemorySummaryStore
// =============================================================================

type MemorySummaryStore struct {
	mu        sync.Mutex
	summaries map[string]orchestrator.Summary
}

func (s *MemorySummaryStore) GetSummary(ctx context.Context, checksum string) (*orchestrator.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sum, ok := s.summaries[checksum]; ok {
		return &sum, nil
	}
	return nil, nil
}

func (s *MemorySummaryStore) PutSummary(ctx context.Context, sum orchestrator.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sum.Checksum] = sum
	return nil
}

// =============================================================================
// MemoryEventStore
// =============================================================================

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][][]byte
}

func (s *MemoryEventStore) StoreEvent(ctx context.Context, e orchestrator.Event) error {
	blob, err := encodeBlob(e)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.SessionID] = append(s.events[e.SessionID], blob)
	return nil
}

// ListEvents returns events in the order they were stored
func (s *MemoryEventStore) ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]orchestrator.Event, error) {
	s.mu.Lock()
	blobs := s.events[sessionID]
	s.mu.Unlock()

	if offset >= len(blobs) {
		return nil, nil
	}
	blobs = blobs[offset:]
	if limit > 0 && len(blobs) > limit {
		blobs = blobs[:limit]
	}

	out := make([]orchestrator.Event, 0, len(blobs))
	for _, b := range blobs {
		var e orchestrator.Event
		if err := decodeBlob(b, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
