// Package orchestrator runs the wiki generation cycle for one repository and
// language: resolve the structure (cache first), schedule page content, and
// persist the finished wiki. It owns the page content map exclusively; all
// page results funnel through a single aggregation point that discards
// results from superseded cycles.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/wikigen/internal/cache"
	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/events"
	"git.home.luguber.info/inful/wikigen/internal/generator"
	"git.home.luguber.info/inful/wikigen/internal/metrics"
	"git.home.luguber.info/inful/wikigen/internal/resolver"
	"git.home.luguber.info/inful/wikigen/internal/scheduler"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Snapshot is a consistent, caller-owned view of the orchestrator. The
// structure pointer is shared but immutable once published; the pages map is
// a copy.
type Snapshot struct {
	State     State
	Status    string
	Epoch     uint64
	CycleID   string
	Structure *wiki.Structure
	Pages     map[string]wiki.PageContent
	InFlight  []string
	Err       error
}

// Orchestrator drives generation cycles for a single (identity, language)
// wiki. Load and Refresh are mutually exclusive per instance; Snapshot and
// SelectPage may be called from any goroutine at any time.
type Orchestrator struct {
	identity      wiki.Identity
	language      string
	params        generator.Params
	comprehensive bool

	cache    *cache.Gateway
	resolver *resolver.Resolver
	sched    *scheduler.Scheduler
	bus      *events.Bus
	recorder metrics.Recorder

	unsubscribe func()

	mu           sync.Mutex
	epoch        uint64
	state        State
	status       string
	cycleID      string
	structure    *wiki.Structure
	pages        map[string]wiki.PageContent
	cacheSourced bool
	lastErr      error
	completed    int
	total        int
	expected     int // issued pages this cycle; -1 while unknown
	cycleDone    chan struct{}
}

// Config wires an orchestrator's collaborators.
type Config struct {
	Identity      wiki.Identity
	Language      string
	Params        generator.Params
	Comprehensive bool

	Cache     *cache.Gateway
	Resolver  *resolver.Resolver
	Scheduler *scheduler.Scheduler
	Bus       *events.Bus
	Recorder  metrics.Recorder
}

// New creates an orchestrator and starts its result aggregation loop. Close
// must be called to detach from the bus.
func New(cfg Config) *Orchestrator {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	o := &Orchestrator{
		identity:      cfg.Identity,
		language:      cfg.Language,
		params:        cfg.Params,
		comprehensive: cfg.Comprehensive,
		cache:         cfg.Cache,
		resolver:      cfg.Resolver,
		sched:         cfg.Scheduler,
		bus:           cfg.Bus,
		recorder:      recorder,
		state:         StateIdle,
		status:        statusFor(StateIdle, 0, 0, ""),
		pages:         make(map[string]wiki.PageContent),
		expected:      -1,
	}

	ch, unsubscribe := events.Subscribe[events.PageResult](cfg.Bus, 64)
	o.unsubscribe = unsubscribe
	go o.aggregate(ch)

	return o
}

// Close detaches the aggregation loop from the bus.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
}

// Load runs a full cycle, serving from cache when possible. It blocks until
// the cycle reaches Ready or Error.
func (o *Orchestrator) Load(ctx context.Context) error {
	return o.runCycle(ctx, false)
}

// Refresh runs a full cycle that bypasses the cache and regenerates
// everything. The previous wiki stays visible in snapshots until the new
// structure is resolved.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.runCycle(ctx, true)
}

// Snapshot returns the current view of the wiki.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	pages := make(map[string]wiki.PageContent, len(o.pages))
	for id, pc := range o.pages {
		pages[id] = pc
	}
	return Snapshot{
		State:     o.state,
		Status:    o.status,
		Epoch:     o.epoch,
		CycleID:   o.cycleID,
		Structure: o.structure,
		Pages:     pages,
		InFlight:  o.sched.InFlight(),
		Err:       o.lastErr,
	}
}

// SelectPage requests content for a single page on demand. Completed pages
// are served as-is; pages already in flight are left alone; anything else is
// scheduled for generation under the current epoch.
func (o *Orchestrator) SelectPage(ctx context.Context, pageID string) error {
	o.mu.Lock()
	if o.structure == nil {
		o.mu.Unlock()
		return werrors.ValidationError("no structure resolved yet")
	}
	page, ok := o.structure.PageByID(pageID)
	if !ok {
		o.mu.Unlock()
		return werrors.ValidationError("unknown page id: " + pageID)
	}
	if o.pages[pageID].State == wiki.PageStateComplete {
		o.mu.Unlock()
		return nil
	}
	o.pages[pageID] = wiki.PageContent{
		PageID:  pageID,
		Content: wiki.PendingContent,
		State:   wiki.PageStatePending,
	}
	epoch := o.epoch
	o.mu.Unlock()

	o.sched.SchedulePage(ctx, epoch, o.identity, page, o.params)
	return nil
}

// runCycle is the state machine for one load or refresh.
func (o *Orchestrator) runCycle(ctx context.Context, bypassCache bool) error {
	o.mu.Lock()
	if !o.state.Terminal() {
		o.mu.Unlock()
		return werrors.ValidationError("a generation cycle is already running")
	}
	o.epoch++
	epoch := o.epoch
	cycleID := uuid.NewString()
	o.cycleID = cycleID
	// The previous structure and pages stay in place so snapshots keep serving
	// the old wiki until the new structure is resolved. Epoch discard protects
	// them from results of the superseded cycle.
	o.cacheSourced = false
	o.lastErr = nil
	o.completed = 0
	o.total = 0
	o.expected = -1
	o.cycleDone = make(chan struct{})
	o.mu.Unlock()

	slog.Info("Starting generation cycle",
		"repo", o.identity.Slug(), "language", o.language,
		"epoch", epoch, "cycle_id", cycleID, "refresh", bypassCache)

	var res *resolver.Resolution
	if !bypassCache {
		o.setState(ctx, epoch, StateLoadingCache, "")
		res = o.resolver.FromCache(ctx, o.identity, o.language)
	}
	if res == nil {
		o.setState(ctx, epoch, StateGeneratingStructure, "")
		fresh, err := o.resolver.Generate(ctx, o.identity, o.language, o.params)
		if err != nil {
			return o.failCycle(ctx, epoch, cycleID, err)
		}
		res = fresh
	}

	if res.FromCache {
		o.mu.Lock()
		o.structure = res.Structure
		o.cacheSourced = true
		o.pages = make(map[string]wiki.PageContent, len(res.Structure.Pages))
		for _, p := range res.Structure.Pages {
			if pc, ok := res.Pages[p.ID]; ok {
				o.pages[p.ID] = pc
			} else {
				o.pages[p.ID] = wiki.PageContent{PageID: p.ID, State: wiki.PageStateNotRequested}
			}
		}
		o.mu.Unlock()
		return o.completeCycle(ctx, epoch, cycleID)
	}

	selected := scheduler.SelectPages(res.Structure, o.comprehensive)

	o.mu.Lock()
	o.structure = res.Structure
	o.total = len(selected)
	o.pages = make(map[string]wiki.PageContent, len(res.Structure.Pages))
	for _, p := range res.Structure.Pages {
		o.pages[p.ID] = wiki.PageContent{PageID: p.ID, State: wiki.PageStateNotRequested}
	}
	for _, p := range selected {
		o.pages[p.ID] = wiki.PageContent{PageID: p.ID, Content: wiki.PendingContent, State: wiki.PageStatePending}
	}
	o.mu.Unlock()

	if len(selected) > 0 {
		o.setState(ctx, epoch, StateGeneratingPages, "")

		issued := o.sched.Run(ctx, epoch, o.identity, selected, o.params)

		o.mu.Lock()
		o.expected = len(issued)
		done := o.completed >= o.expected
		waitCh := o.cycleDone
		if done {
			o.closeCycleDoneLocked()
		}
		o.mu.Unlock()

		if !done {
			select {
			case <-waitCh:
			case <-ctx.Done():
				return o.failCycle(ctx, epoch, cycleID,
					werrors.Wrap(ctx.Err(), werrors.CategoryInternal, werrors.SeverityError, "cycle canceled"))
			}
		}
	}

	o.setState(ctx, epoch, StatePersisting, "")
	o.persist(ctx)

	return o.completeCycle(ctx, epoch, cycleID)
}

// persist writes the finished wiki to the cache, best effort. Runs at most
// once per cycle and never for a cache-sourced wiki.
func (o *Orchestrator) persist(ctx context.Context) {
	o.mu.Lock()
	if o.cacheSourced || o.structure == nil {
		o.mu.Unlock()
		return
	}
	structure := o.structure
	pages := make(map[string]wiki.PageContent, len(o.pages))
	for id, pc := range o.pages {
		pages[id] = pc
	}
	o.mu.Unlock()

	if err := o.cache.Save(ctx, o.identity, o.language, structure, pages); err != nil {
		slog.Warn("Failed to persist wiki to cache", "repo", o.identity.Slug(), "error", err)
	}
}

// aggregate is the single point where page results enter the content map.
// Results from a superseded epoch are discarded here and nowhere else.
func (o *Orchestrator) aggregate(ch <-chan events.PageResult) {
	for r := range ch {
		o.apply(r)
	}
}

func (o *Orchestrator) apply(r events.PageResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r.Epoch != o.epoch {
		slog.Debug("Discarding page result from superseded cycle",
			"page_id", r.PageID, "result_epoch", r.Epoch, "current_epoch", o.epoch)
		return
	}
	if _, known := o.pages[r.PageID]; !known {
		slog.Debug("Discarding page result for unknown page", "page_id", r.PageID)
		return
	}

	if r.Failed() {
		o.pages[r.PageID] = wiki.PageContent{
			PageID:  r.PageID,
			Content: wiki.ErrorContent(r.Err),
			State:   wiki.PageStateFailed,
		}
	} else {
		o.pages[r.PageID] = wiki.PageContent{
			PageID:  r.PageID,
			Content: r.Content,
			State:   wiki.PageStateComplete,
		}
	}

	o.completed++
	if o.state == StateGeneratingPages {
		o.status = statusFor(StateGeneratingPages, o.completed, o.total, "")
	}
	if o.expected >= 0 && o.completed >= o.expected {
		o.closeCycleDoneLocked()
	}
}

func (o *Orchestrator) closeCycleDoneLocked() {
	if o.cycleDone != nil {
		close(o.cycleDone)
		o.cycleDone = nil
	}
}

// setState publishes a state transition. Stale transitions from a superseded
// cycle are dropped.
func (o *Orchestrator) setState(ctx context.Context, epoch uint64, s State, detail string) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.state = s
	o.status = statusFor(s, o.completed, o.total, detail)
	status := o.status
	o.mu.Unlock()

	slog.Debug("State transition", "repo", o.identity.Slug(), "state", s, "epoch", epoch)
	evt := events.StateChanged{Epoch: epoch, State: string(s), Status: status, ChangedAt: time.Now()}
	if err := o.bus.Publish(ctx, evt); err != nil {
		slog.Debug("Failed to publish state change", "error", err)
	}
}

func (o *Orchestrator) completeCycle(ctx context.Context, epoch uint64, cycleID string) error {
	o.mu.Lock()
	var failed int
	for _, pc := range o.pages {
		if pc.State == wiki.PageStateFailed {
			failed++
		}
	}
	pages := len(o.pages)
	o.mu.Unlock()

	o.setState(ctx, epoch, StateReady, "")
	o.recorder.IncCycleOutcome("ready")
	slog.Info("Generation cycle complete",
		"repo", o.identity.Slug(), "epoch", epoch, "cycle_id", cycleID,
		"pages", pages, "failed", failed)

	evt := events.CycleCompleted{
		Epoch: epoch, CycleID: cycleID, Outcome: "ready",
		Pages: pages, Failed: failed, CompletedAt: time.Now(),
	}
	if err := o.bus.Publish(ctx, evt); err != nil {
		slog.Debug("Failed to publish cycle completion", "error", err)
	}
	return nil
}

func (o *Orchestrator) failCycle(ctx context.Context, epoch uint64, cycleID string, cause error) error {
	o.mu.Lock()
	if epoch == o.epoch {
		o.lastErr = cause
		o.closeCycleDoneLocked()
	}
	o.mu.Unlock()

	o.setState(ctx, epoch, StateError, cause.Error())
	o.recorder.IncCycleOutcome("error")
	slog.Error("Generation cycle failed",
		"repo", o.identity.Slug(), "epoch", epoch, "cycle_id", cycleID, "error", cause)

	evt := events.CycleCompleted{
		Epoch: epoch, CycleID: cycleID, Outcome: "error", CompletedAt: time.Now(),
	}
	if err := o.bus.Publish(ctx, evt); err != nil {
		slog.Debug("Failed to publish cycle completion", "error", err)
	}
	return cause
}
