package orchestrator

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

// transcriptKey domain-separates transcript checksums from other hashes
var transcriptKey = [32]byte{
	'c', 'o', 'n', 'd', 'u', 'c', 't', 'o', 'r', '.', 't', 'r', 'a', 'n', 's', 'c',
	'r', 'i', 'p', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Checksum is the hex BLAKE3 keyed hash of a raw transcript
func Checksum(transcript string) string {
	h, err := blake3.NewKeyed(transcriptKey[:])
	if err != nil {
		panic("orchestrator: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write([]byte(transcript))
	return hex.EncodeToString(h.Sum(nil))
}

// Summary is a condensed agent log, addressed by the raw log's checksum
type Summary struct {
	AgentID    string    `json:"agent_id"`
	Body       string    `json:"body"`
	Checksum   string    `json:"checksum"`
	ArchiveRef string    `json:"archive_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Archive stores original transcripts, append-only, keyed by agent id
type Archive interface {
	PutTranscript(ctx context.Context, agentID, checksum, transcript string) (ref string, err error)
	GetTranscript(ctx context.Context, agentID string) (string, error)
}

// SummaryCache persists summaries beyond the run
type SummaryCache interface {
	GetSummary(ctx context.Context, checksum string) (*Summary, error)
	PutSummary(ctx context.Context, s Summary) error
}

// SummaryJobs runs summarization off the runtime's main path. Requests are
// offered without blocking and processed by Run.
type SummaryJobs struct {
	dir        *Directory
	summarizer Summarizer
	archive    Archive
	persistent SummaryCache
	logger     hclog.Logger

	group singleflight.Group
	queue chan string

	mu       sync.Mutex
	cache    map[string]Summary
	inflight map[string]bool
}

func NewSummaryJobs(dir *Directory, summarizer Summarizer, archive Archive, cache SummaryCache, logger hclog.Logger) *SummaryJobs {
	if summarizer == nil {
		summarizer = MarkdownCondenser{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SummaryJobs{
		dir:        dir,
		summarizer: summarizer,
		archive:    archive,
		persistent: cache,
		logger:     logger,
		queue:      make(chan string, 16),
		cache:      make(map[string]Summary),
		inflight:   make(map[string]bool),
	}
}

// Offer queues a summarization request. It returns false when the agent is
// already queued or the queue is full.
func (j *SummaryJobs) Offer(agentID string) bool {
	j.mu.Lock()
	if j.inflight[agentID] {
		j.mu.Unlock()
		return false
	}
	j.inflight[agentID] = true
	j.mu.Unlock()

	select {
	case j.queue <- agentID:
		return true
	default:
		j.done(agentID)
		return false
	}
}

func (j *SummaryJobs) done(agentID string) {
	j.mu.Lock()
	delete(j.inflight, agentID)
	j.mu.Unlock()
}

// Run processes queued requests until ctx is done
func (j *SummaryJobs) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-j.queue:
			if _, err := j.Summarize(ctx, id); err != nil {
				j.logger.Warn("summarization failed, keeping raw log", "agent_id", id, "error", err)
			}
			j.done(id)
		}
	}
}

// Summarize condenses one agent's log and swaps it into the directory.
// Concurrent calls for the same transcript share one summarization.
func (j *SummaryJobs) Summarize(ctx context.Context, agentID string) (Summary, error) {
	view, err := j.dir.ViewLog(agentID)
	if err != nil {
		return Summary{}, &SummarizationFailure{AgentID: agentID, Err: err}
	}
	if view.Summarized {
		return Summary{AgentID: agentID, Body: view.Body, Checksum: view.Checksum}, nil
	}
	if view.Body == "" {
		return Summary{}, &SummarizationFailure{AgentID: agentID, Err: errors.New("log is empty")}
	}

	sum := Checksum(view.Body)
	v, err, shared := j.group.Do(sum, func() (any, error) {
		return j.summarizeOnce(ctx, agentID, sum, view.Body)
	})
	if err != nil {
		return Summary{}, &SummarizationFailure{AgentID: agentID, Err: err}
	}
	s := v.(Summary)

	if shared || s.AgentID != agentID {
		// same transcript under another agent id: archive it for this agent too
		if ref, err := j.archiveTranscript(ctx, agentID, sum, view.Body); err == nil {
			s.ArchiveRef = ref
		}
		s.AgentID = agentID
	}

	if err := j.dir.ReplaceLogWithSummary(agentID, sum, s.Body); err != nil {
		return Summary{}, &SummarizationFailure{AgentID: agentID, Err: err}
	}
	j.logger.Debug("agent log summarized", "agent_id", agentID, "checksum", sum, "raw_bytes", len(view.Body), "summary_bytes", len(s.Body))
	return s, nil
}

func (j *SummaryJobs) summarizeOnce(ctx context.Context, agentID, sum, transcript string) (Summary, error) {
	if s, ok := j.cached(ctx, sum); ok {
		j.logger.Trace("summary cache hit", "checksum", sum)
		return s, nil
	}

	body, err := j.summarizer.Summarize(ctx, agentID, transcript)
	if err != nil {
		return Summary{}, err
	}

	ref, err := j.archiveTranscript(ctx, agentID, sum, transcript)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		AgentID:    agentID,
		Body:       body,
		Checksum:   sum,
		ArchiveRef: ref,
		CreatedAt:  time.Now(),
	}

	j.mu.Lock()
	j.cache[sum] = s
	j.mu.Unlock()

	if j.persistent != nil {
		if err := j.persistent.PutSummary(ctx, s); err != nil {
			j.logger.Warn("persist summary", "checksum", sum, "error", err)
		}
	}
	return s, nil
}

func (j *SummaryJobs) cached(ctx context.Context, sum string) (Summary, bool) {
	j.mu.Lock()
	s, ok := j.cache[sum]
	j.mu.Unlock()
	if ok || j.persistent == nil {
		return s, ok
	}

	p, err := j.persistent.GetSummary(ctx, sum)
	if err != nil || p == nil {
		return Summary{}, false
	}
	j.mu.Lock()
	j.cache[sum] = *p
	j.mu.Unlock()
	return *p, true
}

func (j *SummaryJobs) archiveTranscript(ctx context.Context, agentID, sum, transcript string) (string, error) {
	if j.archive == nil {
		return "", nil
	}
	return j.archive.PutTranscript(ctx, agentID, sum, transcript)
}
