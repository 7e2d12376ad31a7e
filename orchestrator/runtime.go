package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// RunRecord is what gets persisted when a round completes
type RunRecord struct {
	SessionID    string        `json:"session_id"`
	Round        int           `json:"round"`
	EndResults   EndResults    `json:"end_results"`
	Continuation Continuation  `json:"continuation"`
	Agents       []AgentRecord `json:"agents"`
	ComposedAt   time.Time     `json:"composed_at"`
}

// RunStore persists completed rounds
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
}

// Options configures a Runtime. Engine is required.
type Options struct {
	Engine Engine

	// Profiles are the agent profiles, the first being the default
	Profiles []ProfileInfo

	// PrimaryContextWindow registers the primary as a ledger participant
	PrimaryContextWindow int

	Backoff          BackoffPolicy
	CancelGrace      time.Duration
	OutputTokenLimit int
	SummarizeAt      float64

	Summarizer Summarizer
	Archive    Archive
	Summaries  SummaryCache
	Runs       RunStore

	SessionID string
	Sink      EventSink
	Logger    hclog.Logger
}

// Runtime coordinates delegation for one primary conversation
type Runtime struct {
	opts   Options
	logger hclog.Logger

	dir      *Directory
	ledger   *Ledger
	jobs     *SummaryJobs
	bridge   *Bridge
	profiles *ProfileSelector
	sink     EventSink

	inbox         *mailbox[Delivery]
	continuations *mailbox[Continuation]
	kick          chan struct{}

	mu              sync.Mutex
	state           State
	round           int
	tracked         []string
	frozen          bool
	next            []string
	delivered       map[string]Delivery
	fired           map[int]bool
	turnActive      bool
	injected        []Delivery
	fallback        []Delivery
	lastUserMessage string

	// cursors is owned by the main loop
	cursors map[string]int

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	closed   bool
}

func NewRuntime(opts Options) (*Runtime, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("orchestrator: an engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = 10 * time.Second
	}
	if opts.OutputTokenLimit <= 0 {
		opts.OutputTokenLimit = DefaultOutputTokenLimit
	}
	if opts.Summarizer == nil {
		opts.Summarizer = MarkdownCondenser{}
	}
	opts.Backoff = opts.Backoff.withDefaults()

	r := &Runtime{
		opts:          opts,
		logger:        opts.Logger,
		dir:           NewDirectory(),
		profiles:      NewProfileSelector(opts.Profiles, opts.Logger.Named("profiles")),
		sink:          opts.Sink,
		inbox:         newMailbox[Delivery](),
		continuations: newMailbox[Continuation](),
		kick:          make(chan struct{}, 1),
		state:         StateIdle,
		round:         1,
		delivered:     make(map[string]Delivery),
		fired:         make(map[int]bool),
		cursors:       make(map[string]int),
		loopDone:      make(chan struct{}),
	}
	if r.sink == nil {
		r.sink = nopSink{}
	}
	r.jobs = NewSummaryJobs(r.dir, opts.Summarizer, opts.Archive, opts.Summaries, opts.Logger.Named("summary"))
	r.ledger = NewLedger(r.dir, opts.SummarizeAt, r.jobs, opts.Logger.Named("ledger"))
	r.bridge = NewBridge(r.dir, r, opts.Backoff, opts.OutputTokenLimit, opts.Logger.Named("bridge"))

	if opts.PrimaryContextWindow > 0 {
		r.ledger.Update(MainParticipant, 0, opts.PrimaryContextWindow)
	}
	return r, nil
}

// Start runs the main loop and the summary worker until ctx is done or
// Close is called
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return fmt.Errorf("orchestrator: runtime already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	go r.jobs.Run(r.ctx)
	go r.loop()
	return nil
}

// Close stops the runtime. Running agents are cancelled and their watchers
// drained before it returns.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.ctx == nil || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	r.bridge.Wait()
	<-r.loopDone
}

// Spawn validates and registers a task and hands it to a watcher. It
// returns without waiting for the agent to do anything.
func (r *Runtime) Spawn(ctx context.Context, parentID string, spec TaskSpec) (SpawnResult, error) {
	r.mu.Lock()
	started, closed, idle := r.ctx != nil, r.closed, r.state == StateIdle
	r.mu.Unlock()
	if !started {
		return SpawnResult{}, ErrNotStarted
	}
	if closed {
		return SpawnResult{}, ErrRuntimeClosed
	}
	if idle {
		// a round is only ever closed by EndTurn
		return SpawnResult{}, ErrNoActiveTurn
	}
	if err := spec.Validate(); err != nil {
		return SpawnResult{}, err
	}

	profile := r.profiles.Select(spec.Profile)
	spec.Profile = profile.Name
	id, err := r.dir.Register(parentID, spec)
	if err != nil {
		return SpawnResult{}, err
	}

	r.mu.Lock()
	round := r.round
	switch {
	case r.frozen:
		// the tracked set of this round is closed; join the next one
		r.next = append(r.next, id)
		round++
	case r.transitionLocked(StateDelegating):
		r.tracked = append(r.tracked, id)
	default:
		r.next = append(r.next, id)
		round++
	}
	r.mu.Unlock()

	r.dir.setRound(id, round)
	r.ledger.Update(id, 0, profile.ContextWindow)
	r.bridge.Supervise(r.ctx, id, r.launcher(id, spec))

	r.logger.Debug("agent spawned", "agent_id", id, "name", spec.DisplayName, "profile", spec.Profile, "round", round)
	r.emit(EventAgentSpawned, id, round, fmt.Sprintf("Spawned **%s** (`%s`) with profile `%s`", spec.DisplayName, ShortID(id), spec.Profile))
	return SpawnResult{AgentID: id, Status: StatusRunning}, nil
}

func (r *Runtime) launcher(id string, spec TaskSpec) LaunchFunc {
	return func(ctx context.Context) (Conversation, error) {
		return r.opts.Engine.Launch(ctx, LaunchRequest{
			AgentID: id,
			Spec:    spec,
			Progress: func(message string) {
				if err := r.ReportProgress(id, message); err != nil {
					r.logger.Debug("progress dropped", "agent_id", id, "error", err)
				}
			},
			Usage: func(used, limit int) {
				r.RecordUsage(id, used, limit)
			},
		})
	}
}

// BeginTurn marks the primary's turn active. Results deferred while no
// turn was active become available through TakeInjected.
func (r *Runtime) BeginTurn(userMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastUserMessage = userMessage
	r.beginTurnLocked()
}

// BeginContinuationTurn starts a turn driven by a posted continuation. The
// last user message is kept so later rounds still carry its questions.
func (r *Runtime) BeginContinuationTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beginTurnLocked()
}

func (r *Runtime) beginTurnLocked() {
	r.turnActive = true
	if len(r.fallback) > 0 {
		r.injected = append(r.fallback, r.injected...)
		r.fallback = nil
	}
	switch r.state {
	case StateIdle, StateContinuing:
		r.transitionLocked(StatePlanning)
	}
}

// EndTurn closes the active turn. Undrained results fall back to the next
// turn, and the current round's tracked set is frozen.
func (r *Runtime) EndTurn() {
	r.mu.Lock()
	r.turnActive = false
	if len(r.injected) > 0 {
		for i := range r.injected {
			r.injected[i].Deferred = true
		}
		r.fallback = append(r.injected, r.fallback...)
		r.injected = nil
	}
	if !r.frozen && len(r.tracked) > 0 {
		r.frozen = true
		r.transitionLocked(StateAwaitingResults)
	}
	r.mu.Unlock()

	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// TakeInjected returns and clears the results delivered into the active turn
func (r *Runtime) TakeInjected() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.injected
	r.injected = nil
	return out
}

// Inject implements ResultSink
func (r *Runtime) Inject(d Delivery) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turnActive {
		r.injected = append(r.injected, d)
		return true
	}
	d.Deferred = true
	r.fallback = append(r.fallback, d)
	return false
}

// Post implements ResultSink
func (r *Runtime) Post(d Delivery) {
	r.inbox.Push(d)
}

func (r *Runtime) ReportProgress(agentID, message string) error {
	return r.dir.RecordProgress(agentID, message)
}

// RecordUsage feeds the ledger after a tool-call boundary
func (r *Runtime) RecordUsage(participant string, used, limit int) {
	r.ledger.Update(participant, used, limit)
}

// Cancel stops an agent cooperatively, forcing it after the grace period
func (r *Runtime) Cancel(ctx context.Context, agentID string) error {
	err := r.dir.Cancel(ctx, agentID, r.opts.CancelGrace)
	var timeout *CancellationTimeout
	if errors.As(err, &timeout) {
		r.logger.Warn("agent ignored cancel", "agent_id", agentID, "grace", timeout.Grace)
	}
	return err
}

func (r *Runtime) Snapshot(agentID string) (AgentRecord, error) {
	return r.dir.Snapshot(agentID)
}

func (r *Runtime) List() []AgentRecord {
	return r.dir.List()
}

func (r *Runtime) ViewLog(agentID string) (LogView, error) {
	return r.dir.ViewLog(agentID)
}

// Summarize condenses an agent's log now instead of waiting for pressure
func (r *Runtime) Summarize(ctx context.Context, agentID string) (Summary, error) {
	return r.jobs.Summarize(ctx, agentID)
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Round is the current delegation round, starting at 1
func (r *Runtime) Round() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.round
}

// ContextUsage is the aggregate usage across active participants
func (r *Runtime) ContextUsage() ContextTokens {
	total, limit := r.ledger.Aggregate()
	return ContextTokens{Total: total, Limit: limit}
}

// ContinuationReady fires when TakeContinuations has something to return
func (r *Runtime) ContinuationReady() <-chan struct{} {
	return r.continuations.C()
}

func (r *Runtime) TakeContinuations() []Continuation {
	return r.continuations.Drain()
}

// transitionLocked requires r.mu. Moves outside the table are refused and
// logged as defects.
func (r *Runtime) transitionLocked(to State) bool {
	if !CanTransition(r.state, to) {
		r.logger.Error("invalid state transition refused", "from", r.state, "to", to)
		return false
	}
	if r.state != to {
		r.logger.Trace("state", "from", r.state, "to", to)
	}
	r.state = to
	return true
}

func (r *Runtime) loop() {
	defer close(r.loopDone)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.inbox.C():
			for _, d := range r.inbox.Drain() {
				r.handleDelivery(d)
			}
			r.checkRound()
		case <-r.dir.Changes():
			r.drainProgress()
		case <-r.kick:
			r.checkRound()
		}
	}
}

func (r *Runtime) handleDelivery(d Delivery) {
	r.ledger.Retire(d.AgentID)
	r.drainProgressFor(d.AgentID)

	r.mu.Lock()
	r.delivered[d.AgentID] = d
	r.mu.Unlock()

	if err := failureOf(d.Record, r.opts.Backoff.Ceiling); err != nil {
		r.logger.Info("agent ended without success", "agent_id", d.AgentID, "error", err)
	}
	r.emit(EventAgentCompleted, d.AgentID, d.Record.Round, d.Markdown)
}

func (r *Runtime) drainProgress() {
	for _, rec := range r.dir.List() {
		r.drainProgressFor(rec.AgentID)
	}
}

func (r *Runtime) drainProgressFor(agentID string) {
	entries, cursor, err := r.dir.ProgressSince(agentID, r.cursors[agentID])
	if err != nil {
		return
	}
	r.cursors[agentID] = cursor
	if len(entries) == 0 {
		return
	}
	rec, _ := r.dir.Snapshot(agentID)
	for _, p := range entries {
		r.emit(EventAgentProgress, agentID, rec.Round, p.Message)
	}
}

// checkRound composes and continues once every tracked agent has
// delivered. It loops because a promoted round may already be complete.
func (r *Runtime) checkRound() {
	for {
		r.mu.Lock()
		if !r.frozen || len(r.tracked) == 0 || r.fired[r.round] {
			r.mu.Unlock()
			return
		}
		deliveries := make([]Delivery, 0, len(r.tracked))
		for _, id := range r.tracked {
			d, ok := r.delivered[id]
			if !ok {
				r.mu.Unlock()
				return
			}
			deliveries = append(deliveries, d)
		}
		if !r.transitionLocked(StateComposingResults) {
			r.mu.Unlock()
			return
		}
		round := r.round
		lastMessage := r.lastUserMessage
		r.mu.Unlock()

		for i, d := range deliveries {
			// a log summarized after delivery replaces the verbatim body
			if view, err := r.dir.ViewLog(d.AgentID); err == nil && view.Summarized {
				deliveries[i].Markdown = Normalize(d.Record, view.Body, r.opts.OutputTokenLimit)
			}
		}

		results := Compose(round, deliveries)
		r.emit(EventEndResultsComposed, MainParticipant, round, results.Markdown())

		cont := BuildContinuation(results, lastMessage)
		r.mu.Lock()
		r.transitionLocked(StateFollowUpReady)
		r.fired[round] = true
		r.mu.Unlock()

		r.continuations.Push(cont)
		r.emit(EventContinuationPosted, MainParticipant, round, cont.Markdown)
		r.persist(round, results, cont, deliveries)

		r.mu.Lock()
		r.transitionLocked(StateContinuing)
		r.round++
		r.tracked, r.next = r.next, nil
		r.frozen = false
		if len(r.tracked) > 0 {
			r.transitionLocked(StateDelegating)
			if !r.turnActive {
				r.frozen = true
				r.transitionLocked(StateAwaitingResults)
			}
		}
		r.mu.Unlock()
	}
}

func (r *Runtime) persist(round int, results EndResults, cont Continuation, deliveries []Delivery) {
	if r.opts.Runs == nil {
		return
	}
	agents := make([]AgentRecord, 0, len(deliveries))
	for _, d := range deliveries {
		if rec, err := r.dir.Snapshot(d.AgentID); err == nil {
			agents = append(agents, rec)
		}
	}
	run := RunRecord{
		SessionID:    r.opts.SessionID,
		Round:        round,
		EndResults:   results,
		Continuation: cont,
		Agents:       agents,
		ComposedAt:   results.ComposedAt,
	}
	if err := r.opts.Runs.SaveRun(r.ctx, run); err != nil {
		r.logger.Warn("persist run", "round", round, "error", err)
	}
}

func (r *Runtime) emit(kind EventKind, agentID string, round int, body string) {
	var used, limit int
	if agentID == MainParticipant {
		used, limit = r.ledger.Aggregate()
	} else {
		used, limit = r.ledger.Usage(agentID)
	}
	r.sink.HandleEvent(Event{
		Kind:      kind,
		SessionID: r.opts.SessionID,
		Round:     round,
		Body:      body,
		Metadata: EventMetadata{
			AgentID:       agentID,
			ContentType:   ContentTypeMarkdown,
			ContextTokens: ContextTokens{Total: used, Limit: limit},
		},
		At: time.Now(),
	})
}
