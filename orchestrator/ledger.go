package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultSummarizeFraction is the share of the smallest active context
// window past which completed agent logs are summarized
const DefaultSummarizeFraction = 0.8

// LedgerEntry is the token usage of one participant
type LedgerEntry struct {
	ParticipantID string    `json:"participant_id"`
	TokensUsed    int       `json:"tokens_used"`
	TokensLimit   int       `json:"tokens_limit"`
	LastUpdated   time.Time `json:"last_updated"`
	Active        bool      `json:"active"`
}

// SummaryRequester accepts summarization requests without blocking
type SummaryRequester interface {
	Offer(agentID string) bool
}

// Ledger tracks context usage per participant and requests summaries when
// any active participant exceeds the threshold.
type Ledger struct {
	mu       sync.Mutex
	entries  map[string]*LedgerEntry
	fraction float64

	dir    *Directory
	jobs   SummaryRequester
	logger hclog.Logger
}

func NewLedger(dir *Directory, fraction float64, jobs SummaryRequester, logger hclog.Logger) *Ledger {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultSummarizeFraction
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Ledger{
		entries:  make(map[string]*LedgerEntry),
		fraction: fraction,
		dir:      dir,
		jobs:     jobs,
		logger:   logger,
	}
}

// Update records the latest usage for a participant. It returns true when
// usage crossed the threshold and a summary request was handed off.
func (l *Ledger) Update(participant string, used, limit int) bool {
	l.mu.Lock()
	e, ok := l.entries[participant]
	if !ok {
		e = &LedgerEntry{ParticipantID: participant, Active: true}
		l.entries[participant] = e
	}
	e.TokensUsed = used
	if limit > 0 {
		e.TokensLimit = limit
	}
	e.LastUpdated = time.Now()

	threshold := l.thresholdLocked()
	over := false
	for _, entry := range l.entries {
		if entry.Active && threshold > 0 && float64(entry.TokensUsed) > threshold {
			over = true
			break
		}
	}
	l.mu.Unlock()

	if !over {
		return false
	}
	return l.requestSummary(participant, threshold)
}

// Retire stops a participant from counting toward the smallest limit
func (l *Ledger) Retire(participant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[participant]; ok {
		e.Active = false
	}
}

// Threshold is fraction times the smallest limit among active participants
func (l *Ledger) Threshold() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.thresholdLocked()
}

func (l *Ledger) thresholdLocked() float64 {
	smallest := 0
	for _, e := range l.entries {
		if !e.Active || e.TokensLimit <= 0 {
			continue
		}
		if smallest == 0 || e.TokensLimit < smallest {
			smallest = e.TokensLimit
		}
	}
	return l.fraction * float64(smallest)
}

func (l *Ledger) Usage(participant string) (used, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[participant]; ok {
		return e.TokensUsed, e.TokensLimit
	}
	return 0, 0
}

// Aggregate sums usage over active participants against the smallest
// active limit
func (l *Ledger) Aggregate() (total, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if !e.Active {
			continue
		}
		total += e.TokensUsed
		if e.TokensLimit > 0 && (limit == 0 || e.TokensLimit < limit) {
			limit = e.TokensLimit
		}
	}
	return total, limit
}

func (l *Ledger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// candidates orders summarizable agents: terminal, not yet summarized and
// with a non-empty log; oldest terminal time first, larger log on ties
func (l *Ledger) candidates() []AgentRecord {
	var out []AgentRecord
	for _, rec := range l.dir.List() {
		if rec.Status.IsTerminal() && !rec.Summarized && rec.LogSize > 0 {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TerminalAt.Equal(out[j].TerminalAt) {
			return out[i].TerminalAt.Before(out[j].TerminalAt)
		}
		return out[i].LogSize > out[j].LogSize
	})
	return out
}

func (l *Ledger) requestSummary(participant string, threshold float64) bool {
	if l.jobs == nil {
		return false
	}
	for _, rec := range l.candidates() {
		if l.jobs.Offer(rec.AgentID) {
			l.logger.Debug("context threshold exceeded, summary requested",
				"participant", participant, "threshold", threshold, "agent_id", rec.AgentID)
			return true
		}
	}
	l.logger.Trace("context threshold exceeded, nothing to summarize", "participant", participant)
	return false
}
