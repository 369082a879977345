// Package scheduler issues page generation work for one cycle: it selects
// pages per the coverage policy, bounds concurrency with a worker pool, and
// publishes one PageResult per issued page.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/events"
	"git.home.luguber.info/inful/wikigen/internal/generator"
	"git.home.luguber.info/inful/wikigen/internal/metrics"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

const (
	// MinWorkers and MaxWorkers bound the pool size. Page generation is
	// expensive on the backend side, so the ceiling stays low.
	MinWorkers = 1
	MaxWorkers = 4
)

// SelectPages applies the coverage policy to a structure: comprehensive mode
// selects every page, priority mode selects only high-importance pages.
// Selection preserves declared structure order.
func SelectPages(structure *wiki.Structure, comprehensive bool) []wiki.PageDescriptor {
	if structure == nil {
		return nil
	}
	if comprehensive {
		return append([]wiki.PageDescriptor(nil), structure.Pages...)
	}
	var selected []wiki.PageDescriptor
	for _, p := range structure.Pages {
		if p.Importance == wiki.ImportanceHigh {
			selected = append(selected, p)
		}
	}
	return selected
}

// Scheduler runs page generation for a cycle. It enforces at most one
// in-flight generation per page id and at most workers concurrent backend
// calls overall.
type Scheduler struct {
	gen      generator.PageGenerator
	bus      *events.Bus
	inflight *InFlightSet
	limiter  *rate.Limiter
	workers  int
	recorder metrics.Recorder
}

// Options tunes the scheduler. Zero values fall back to a single worker and
// an unthrottled limiter.
type Options struct {
	Workers   int
	RateLimit rate.Limit // backend calls per second; 0 means unlimited
	Recorder  metrics.Recorder
}

// New creates a scheduler over the given page generator and event bus.
func New(gen generator.PageGenerator, bus *events.Bus, opts Options) *Scheduler {
	workers := opts.Workers
	if workers < MinWorkers {
		workers = MinWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Scheduler{
		gen:      gen,
		bus:      bus,
		inflight: NewInFlightSet(),
		limiter:  rate.NewLimiter(limit, workers),
		workers:  workers,
		recorder: recorder,
	}
}

// InFlight returns the page ids currently being generated, sorted.
func (s *Scheduler) InFlight() []string {
	return s.inflight.Snapshot()
}

// Run issues generation for the given pages in declared order and blocks
// until every issued page has published its result. Pages already in flight
// (held by an earlier overlapping call) are skipped without a backend call.
// It returns the ids actually issued.
func (s *Scheduler) Run(ctx context.Context, epoch uint64, identity wiki.Identity, pages []wiki.PageDescriptor, params generator.Params) []string {
	if len(pages) == 0 {
		return nil
	}

	// Claim ids up front, in structure order, so issue order is deterministic
	// regardless of worker count.
	issued := make([]wiki.PageDescriptor, 0, len(pages))
	for _, p := range pages {
		if !s.inflight.TryAdd(p.ID) {
			slog.Debug("Page already in flight, skipping", "page_id", p.ID, "epoch", epoch)
			s.recorder.IncPageResult("skipped")
			continue
		}
		issued = append(issued, p)
	}
	s.recorder.SetPagesInFlight(s.inflight.Len())

	queue := make(chan wiki.PageDescriptor, len(issued))
	for _, p := range issued {
		queue <- p
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range queue {
				s.generate(ctx, epoch, identity, page, params)
			}
		}()
	}
	wg.Wait()

	ids := make([]string, len(issued))
	for i, p := range issued {
		ids[i] = p.ID
	}
	return ids
}

// SchedulePage issues generation for a single page, typically in response to
// a page selection while the cycle is still running. If the page is already
// in flight the call is a no-op and reports false.
func (s *Scheduler) SchedulePage(ctx context.Context, epoch uint64, identity wiki.Identity, page wiki.PageDescriptor, params generator.Params) bool {
	if !s.inflight.TryAdd(page.ID) {
		slog.Debug("Page already in flight, ignoring re-request", "page_id", page.ID, "epoch", epoch)
		s.recorder.IncPageResult("skipped")
		return false
	}
	s.recorder.SetPagesInFlight(s.inflight.Len())
	go s.generate(ctx, epoch, identity, page, params)
	return true
}

// generate performs one backend call; the caller must have claimed the page
// id in the in-flight set. The id is released on completion regardless of
// outcome, and exactly one PageResult is published.
func (s *Scheduler) generate(ctx context.Context, epoch uint64, identity wiki.Identity, page wiki.PageDescriptor, params generator.Params) {
	defer func() {
		s.inflight.Remove(page.ID)
		s.recorder.SetPagesInFlight(s.inflight.Len())
	}()

	start := time.Now()

	var content string
	err := s.limiter.Wait(ctx)
	if err == nil {
		content, err = s.gen.GeneratePage(ctx, identity, page, params)
	}
	elapsed := time.Since(start)

	if err != nil {
		err = werrors.GenerationFailed(err, page.ID)
		slog.Warn("Page generation failed",
			"repo", identity.Slug(), "page_id", page.ID, "epoch", epoch, "error", err)
		s.recorder.ObservePageDuration(elapsed, false)
		s.recorder.IncPageResult("failed")
	} else {
		slog.Debug("Page generated",
			"repo", identity.Slug(), "page_id", page.ID, "epoch", epoch, "duration", elapsed)
		s.recorder.ObservePageDuration(elapsed, true)
		s.recorder.IncPageResult("success")
	}

	result := events.PageResult{
		Epoch:       epoch,
		PageID:      page.ID,
		Content:     content,
		Err:         err,
		Duration:    elapsed,
		CompletedAt: time.Now(),
	}
	if pubErr := s.bus.Publish(ctx, result); pubErr != nil {
		slog.Error("Failed to publish page result", "page_id", page.ID, "error", pubErr)
	}
}
