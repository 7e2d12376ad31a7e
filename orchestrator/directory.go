package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogView is a self-consistent read of an agent's log: either the raw
// output or its summary, never a mix.
type LogView struct {
	AgentID    string `json:"agent_id"`
	Body       string `json:"body"`
	Summarized bool   `json:"summarized"`

	// Checksum is the raw transcript checksum once summarized
	Checksum string `json:"checksum,omitempty"`
}

type dirEntry struct {
	mu  sync.Mutex
	rec AgentRecord

	control         Control
	cancelRequested bool
	discarded       bool
	log             string
	checksum        string
	progress        []ProgressEntry
	terminated      chan struct{}
}

// Directory is the registry of delegated agents and the single source of
// truth for their lifecycle status. Membership is guarded by one RWMutex,
// record writes by a mutex per entry.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*dirEntry
	order   []string

	changes chan struct{}
	now     func() time.Time
}

func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]*dirEntry),
		changes: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Register validates the spec and creates a spawned record
func (d *Directory) Register(parentID string, spec TaskSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if parentID == "" {
		parentID = MainParticipant
	}

	id := uuid.New().String()
	e := &dirEntry{
		rec: AgentRecord{
			AgentID:     id,
			ParentID:    parentID,
			DisplayName: spec.DisplayName,
			Purpose:     spec.Purpose,
			Profile:     spec.Profile,
			Checklist:   append([]string(nil), spec.Checklist...),
			Status:      StatusSpawned,
			CreatedAt:   d.now(),
		},
		terminated: make(chan struct{}),
	}

	d.mu.Lock()
	d.entries[id] = e
	d.order = append(d.order, id)
	d.mu.Unlock()

	d.notify()
	return id, nil
}

func (d *Directory) get(id string) (*dirEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return e, nil
}

// notify wakes a Changes reader without blocking
func (d *Directory) notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}

// Changes fires after any registration, status change or progress entry
func (d *Directory) Changes() <-chan struct{} {
	return d.changes
}

// AttachControl stores the child's cancellation handle. A cancel requested
// before the handle existed is applied now.
func (d *Directory) AttachControl(id string, c Control) error {
	e, err := d.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.control = c
	pending := e.cancelRequested || e.rec.Status.IsTerminal()
	e.mu.Unlock()

	if pending {
		c.Cancel()
	}
	return nil
}

// UpdateStatus moves an agent forward. Regressions and changes after a
// terminal status are refused.
func (d *Directory) UpdateStatus(id string, status Status, detail string) error {
	e, err := d.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	err = d.transition(e, status, detail)
	e.mu.Unlock()

	if err == nil {
		d.notify()
	}
	return err
}

// transition requires e.mu
func (d *Directory) transition(e *dirEntry, status Status, detail string) error {
	cur := e.rec.Status
	if cur.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if status.rank() < cur.rank() {
		return ErrStatusRegression
	}
	e.rec.Status = status
	if detail != "" {
		e.rec.Detail = detail
	}
	if status.IsTerminal() {
		e.rec.TerminalAt = d.now()
		close(e.terminated)
	}
	return nil
}

// RecordProgress appends to the progress log. Status is untouched.
func (d *Directory) RecordProgress(id, message string) error {
	e, err := d.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.progress = append(e.progress, ProgressEntry{
		Seq:     len(e.progress) + 1,
		Message: message,
		At:      d.now(),
	})
	e.rec.LatestProgress = message
	e.mu.Unlock()

	d.notify()
	return nil
}

// ProgressSince returns the entries after cursor and the new cursor.
// A zero cursor replays the whole log.
func (d *Directory) ProgressSince(id string, cursor int) ([]ProgressEntry, int, error) {
	e, err := d.get(id)
	if err != nil {
		return nil, cursor, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(e.progress) {
		return nil, len(e.progress), nil
	}
	out := append([]ProgressEntry(nil), e.progress[cursor:]...)
	return out, len(e.progress), nil
}

func (d *Directory) Snapshot(id string) (AgentRecord, error) {
	e, err := d.get(id)
	if err != nil {
		return AgentRecord{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone(), nil
}

// List returns copies of every record in registration order
func (d *Directory) List() []AgentRecord {
	d.mu.RLock()
	entries := make([]*dirEntry, 0, len(d.order))
	for _, id := range d.order {
		entries = append(entries, d.entries[id])
	}
	d.mu.RUnlock()

	out := make([]AgentRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec.clone())
		e.mu.Unlock()
	}
	return out
}

// Terminated is closed when the agent reaches a terminal status
func (d *Directory) Terminated(id string) (<-chan struct{}, error) {
	e, err := d.get(id)
	if err != nil {
		return nil, err
	}
	return e.terminated, nil
}

// Cancel signals the child and waits for it to acknowledge. After grace
// the agent is force-marked cancelled, its partial output is discarded and
// a *CancellationTimeout is returned. Cancelling an agent with no handle
// yet is remembered and applied by AttachControl.
func (d *Directory) Cancel(ctx context.Context, id string, grace time.Duration) error {
	e, err := d.get(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.rec.Status.IsTerminal() {
		e.mu.Unlock()
		return nil
	}
	e.cancelRequested = true
	c := e.control
	e.mu.Unlock()

	if c == nil {
		return nil
	}
	c.Cancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-c.Done():
		d.markCancelled(e, false, "cancelled by request")
		return nil
	case <-timer.C:
		d.markCancelled(e, true, "forced cancel after grace period")
		return &CancellationTimeout{AgentID: id, Grace: grace}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Directory) markCancelled(e *dirEntry, discard bool, detail string) {
	e.mu.Lock()
	err := d.transition(e, StatusCancelled, detail)
	if err == nil && discard {
		e.discarded = true
		e.log = ""
		e.rec.LogSize = 0
	}
	e.mu.Unlock()

	if err == nil {
		d.notify()
	}
}

// Finish applies a terminal outcome and keeps its output as the agent log.
// When the agent is already terminal (a forced cancel, or a cancel that was
// acknowledged first) the status stays and ErrAlreadyTerminal is returned
// along with the current record; the output is still kept unless the
// cancel discarded it.
func (d *Directory) Finish(o Outcome) (AgentRecord, error) {
	e, err := d.get(o.AgentID)
	if err != nil {
		return AgentRecord{}, err
	}

	e.mu.Lock()
	status := o.Status
	if !status.IsTerminal() {
		status = StatusFailed
	}
	err = d.transition(e, status, o.Error)
	if err == nil || e.rec.Metrics == (Metrics{}) {
		e.rec.Metrics = o.Metrics
	}
	if !e.discarded && e.log == "" && o.Output != "" {
		e.log = o.Output
		e.rec.LogSize = len(o.Output)
	}
	rec := e.rec.clone()
	e.mu.Unlock()

	d.notify()
	return rec, err
}

func (d *Directory) ViewLog(id string) (LogView, error) {
	e, err := d.get(id)
	if err != nil {
		return LogView{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return LogView{
		AgentID:    id,
		Body:       e.log,
		Summarized: e.rec.Summarized,
		Checksum:   e.checksum,
	}, nil
}

// ReplaceLogWithSummary swaps the raw log for its summary in one step.
// It is a no-op when the log was already summarized.
func (d *Directory) ReplaceLogWithSummary(id, checksum, summary string) error {
	e, err := d.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.Summarized {
		return nil
	}
	e.log = summary
	e.checksum = checksum
	e.rec.Summarized = true
	e.rec.LogSize = len(summary)
	return nil
}

func (d *Directory) setRound(id string, round int) {
	e, err := d.get(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.rec.Round = round
	e.mu.Unlock()
}
