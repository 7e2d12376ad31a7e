package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// BackoffPolicy bounds how a watcher waits on a child
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
	Ceiling time.Duration
}

var DefaultBackoff = BackoffPolicy{
	Initial: 10 * time.Second,
	Max:     60 * time.Second,
	Ceiling: 5 * time.Minute,
}

func (p BackoffPolicy) withDefaults() BackoffPolicy {
	if p.Initial <= 0 {
		p.Initial = DefaultBackoff.Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Ceiling <= 0 {
		p.Ceiling = DefaultBackoff.Ceiling
	}
	return p
}

// Delivery is a normalized terminal result on its way to the primary
type Delivery struct {
	AgentID  string      `json:"agent_id"`
	Markdown string      `json:"markdown"`
	Record   AgentRecord `json:"record"`
	Outcome  Outcome     `json:"outcome"`

	// Deferred is set when no turn was active and the result waits for the next one
	Deferred bool `json:"deferred"`
}

// ResultSink receives deliveries. Inject reports whether a turn was active
// to take the result; Post hands it to the runtime inbox.
type ResultSink interface {
	Inject(d Delivery) bool
	Post(d Delivery)
}

// LaunchFunc starts the child conversation for a watcher
type LaunchFunc func(ctx context.Context) (Conversation, error)

// Bridge runs one watcher per agent and delivers each terminal result at
// most once.
type Bridge struct {
	dir         *Directory
	sink        ResultSink
	policy      BackoffPolicy
	outputLimit int
	logger      hclog.Logger

	mu        sync.Mutex
	delivered map[string]bool
	wg        sync.WaitGroup
}

func NewBridge(dir *Directory, sink ResultSink, policy BackoffPolicy, outputLimit int, logger hclog.Logger) *Bridge {
	if outputLimit <= 0 {
		outputLimit = DefaultOutputTokenLimit
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bridge{
		dir:         dir,
		sink:        sink,
		policy:      policy.withDefaults(),
		outputLimit: outputLimit,
		logger:      logger,
		delivered:   make(map[string]bool),
	}
}

// Supervise starts the watcher for an agent and returns immediately
func (b *Bridge) Supervise(ctx context.Context, agentID string, launch LaunchFunc) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		o := b.watch(ctx, agentID, launch)
		if err := b.Deliver(o); err != nil && !errors.Is(err, ErrDuplicateDelivery) {
			b.logger.Error("deliver result", "agent_id", agentID, "error", err)
		}
	}()
}

// Wait blocks until every watcher has exited
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) watch(ctx context.Context, id string, launch LaunchFunc) Outcome {
	start := time.Now()
	conv, err := launch(ctx)
	if err != nil {
		return Outcome{AgentID: id, Status: StatusFailed, Error: fmt.Sprintf("launch failed: %v", err)}
	}
	if err := b.dir.AttachControl(id, conv); err != nil {
		conv.Cancel()
		return Outcome{AgentID: id, Status: StatusFailed, Error: err.Error()}
	}
	if err := b.dir.UpdateStatus(id, StatusRunning, ""); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		b.logger.Warn("mark running", "agent_id", id, "error", err)
	}

	terminated, err := b.dir.Terminated(id)
	if err != nil {
		conv.Cancel()
		return Outcome{AgentID: id, Status: StatusFailed, Error: err.Error()}
	}

	outcome := func() Outcome {
		o := conv.Outcome()
		o.AgentID = id
		if o.Metrics.Elapsed == 0 {
			o.Metrics.Elapsed = time.Since(start)
		}
		return o
	}

	interval := b.policy.Initial
	var waited time.Duration
	wait := min(interval, b.policy.Ceiling)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-conv.Done():
			return outcome()

		case <-terminated:
			// a cancel acknowledged by the child carries its output
			select {
			case <-conv.Done():
				return outcome()
			default:
			}
			rec, _ := b.dir.Snapshot(id)
			return Outcome{AgentID: id, Status: rec.Status, Error: rec.Detail, Metrics: Metrics{Elapsed: time.Since(start)}}

		case <-ctx.Done():
			conv.Cancel()
			return Outcome{AgentID: id, Status: StatusCancelled, Error: "run shut down", Metrics: Metrics{Elapsed: time.Since(start)}}

		case <-timer.C:
			waited += wait
			if waited >= b.policy.Ceiling {
				conv.Cancel()
				b.logger.Warn("agent timed out", "agent_id", id, "ceiling", b.policy.Ceiling)
				return Outcome{
					AgentID: id,
					Status:  StatusTimedOut,
					Error:   fmt.Sprintf("no result after %s", b.policy.Ceiling),
					Metrics: Metrics{Elapsed: time.Since(start)},
				}
			}
			b.logger.Trace("agent still running", "agent_id", id, "waited", waited)
			interval = min(interval*2, b.policy.Max)
			wait = min(interval, b.policy.Ceiling-waited)
			timer.Reset(wait)
		}
	}
}

// Deliver finishes the record, normalizes the result and hands it to the
// sink. A second delivery for the same agent is a defect: it is logged and
// ErrDuplicateDelivery is returned without touching the sink.
func (b *Bridge) Deliver(o Outcome) error {
	b.mu.Lock()
	if b.delivered[o.AgentID] {
		b.mu.Unlock()
		b.logger.Error("duplicate terminal delivery", "agent_id", o.AgentID, "status", o.Status)
		return ErrDuplicateDelivery
	}
	b.delivered[o.AgentID] = true
	b.mu.Unlock()

	rec, err := b.dir.Finish(o)
	if err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		return err
	}

	view, err := b.dir.ViewLog(o.AgentID)
	if err != nil {
		return err
	}

	d := Delivery{
		AgentID:  o.AgentID,
		Markdown: Normalize(rec, view.Body, b.outputLimit),
		Record:   rec,
		Outcome:  o,
	}
	if !b.sink.Inject(d) {
		d.Deferred = true
		b.logger.Debug("no active turn, result deferred to next turn", "agent_id", o.AgentID)
	}
	b.sink.Post(d)
	return nil
}

// Delivered reports whether an agent's result has been delivered
func (b *Bridge) Delivered(agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered[agentID]
}
