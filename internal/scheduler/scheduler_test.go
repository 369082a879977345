package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikigen/internal/events"
	"git.home.luguber.info/inful/wikigen/internal/generator"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// fakeGenerator records calls and optionally blocks or fails per page id.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	failing map[string]bool
	block   chan struct{} // when set, GeneratePage waits until closed
	delay   time.Duration
}

func (f *fakeGenerator) GeneratePage(ctx context.Context, _ wiki.Identity, page wiki.PageDescriptor, _ generator.Params) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page.ID)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failing[page.ID] {
		return "", fmt.Errorf("model exploded")
	}
	return "# " + page.Title, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGenerator) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testStructure() *wiki.Structure {
	return &wiki.Structure{
		ID: "wiki-1",
		Pages: []wiki.PageDescriptor{
			{ID: "page-1", Title: "Overview", Importance: wiki.ImportanceHigh},
			{ID: "page-2", Title: "Architecture", Importance: wiki.ImportanceMedium},
			{ID: "page-3", Title: "API", Importance: wiki.ImportanceHigh},
			{ID: "page-4", Title: "Appendix", Importance: wiki.ImportanceLow},
		},
	}
}

func testIdentity() wiki.Identity {
	return wiki.Identity{Owner: "acme", Repo: "widget", HostType: "github"}
}

// collect drains n PageResult events or fails the test on timeout.
func collect(t *testing.T, ch <-chan events.PageResult, n int) []events.PageResult {
	t.Helper()
	results := make([]events.PageResult, 0, n)
	for len(results) < n {
		select {
		case r := <-ch:
			results = append(results, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d results", len(results), n)
		}
	}
	return results
}

func TestSelectPages_PriorityMode(t *testing.T) {
	selected := SelectPages(testStructure(), false)
	require.Len(t, selected, 2)
	require.Equal(t, "page-1", selected[0].ID)
	require.Equal(t, "page-3", selected[1].ID)
}

func TestSelectPages_ComprehensiveMode(t *testing.T) {
	selected := SelectPages(testStructure(), true)
	require.Len(t, selected, 4)
}

func TestSelectPages_NilStructure(t *testing.T) {
	require.Empty(t, SelectPages(nil, true))
}

func TestRun_PublishesOneResultPerPage(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch, unsub := Subscribe(bus, 8)
	defer unsub()

	gen := &fakeGenerator{}
	s := New(gen, bus, Options{Workers: 2})

	pages := SelectPages(testStructure(), true)
	issued := s.Run(context.Background(), 1, testIdentity(), pages, generator.Params{})
	require.Equal(t, []string{"page-1", "page-2", "page-3", "page-4"}, issued)

	results := collect(t, ch, 4)
	seen := make(map[string]events.PageResult)
	for _, r := range results {
		seen[r.PageID] = r
		require.Equal(t, uint64(1), r.Epoch)
		require.False(t, r.Failed())
	}
	require.Len(t, seen, 4)
	require.Equal(t, "# Overview", seen["page-1"].Content)
}

func TestRun_SingleWorkerIssuesInStructureOrder(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	_, unsub := Subscribe(bus, 8)
	defer unsub()

	gen := &fakeGenerator{}
	s := New(gen, bus, Options{Workers: 1})

	s.Run(context.Background(), 1, testIdentity(), SelectPages(testStructure(), true), generator.Params{})
	require.Equal(t, []string{"page-1", "page-2", "page-3", "page-4"}, gen.callOrder())
}

func TestRun_FailureIsIsolatedPerPage(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch, unsub := Subscribe(bus, 8)
	defer unsub()

	gen := &fakeGenerator{failing: map[string]bool{"page-2": true}}
	s := New(gen, bus, Options{Workers: 1})

	s.Run(context.Background(), 3, testIdentity(), SelectPages(testStructure(), true), generator.Params{})

	results := collect(t, ch, 4)
	var failed, succeeded int
	for _, r := range results {
		if r.Failed() {
			failed++
			require.Equal(t, "page-2", r.PageID)
		} else {
			succeeded++
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 3, succeeded)
}

func TestSchedulePage_DuplicateWhileInFlightIsNoOp(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch, unsub := Subscribe(bus, 2)
	defer unsub()

	block := make(chan struct{})
	gen := &fakeGenerator{block: block}
	s := New(gen, bus, Options{Workers: 2})

	page := wiki.PageDescriptor{ID: "page-1", Title: "Overview", Importance: wiki.ImportanceHigh}
	require.True(t, s.SchedulePage(context.Background(), 1, testIdentity(), page, generator.Params{}))

	// Wait for the call to actually start before re-requesting.
	require.Eventually(t, func() bool { return gen.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"page-1"}, s.InFlight())

	require.False(t, s.SchedulePage(context.Background(), 1, testIdentity(), page, generator.Params{}))

	close(block)
	results := collect(t, ch, 1)
	require.Equal(t, "page-1", results[0].PageID)

	// Only one backend call was ever issued.
	require.Equal(t, 1, gen.callCount())
	require.Eventually(t, func() bool { return len(s.InFlight()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestRun_SkipsPagesHeldByEarlierCall(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch, unsub := Subscribe(bus, 8)
	defer unsub()

	block := make(chan struct{})
	gen := &fakeGenerator{block: block}
	s := New(gen, bus, Options{Workers: 2})

	page1 := wiki.PageDescriptor{ID: "page-1", Title: "Overview", Importance: wiki.ImportanceHigh}
	require.True(t, s.SchedulePage(context.Background(), 1, testIdentity(), page1, generator.Params{}))
	require.Eventually(t, func() bool { return gen.callCount() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan []string, 1)
	go func() {
		done <- s.Run(context.Background(), 1, testIdentity(), SelectPages(testStructure(), false), generator.Params{})
	}()

	// Keep page-1 held until Run has claimed its pages: once the backend sees
	// page-3's call, the claim loop has already skipped page-1.
	require.Eventually(t, func() bool { return gen.callCount() == 2 }, time.Second, 5*time.Millisecond)
	close(block)
	var issued []string
	select {
	case issued = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	// page-1 was already held, so Run only issued page-3.
	require.Equal(t, []string{"page-3"}, issued)
	results := collect(t, ch, 2)
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.PageID] = true
	}
	require.True(t, seen["page-1"])
	require.True(t, seen["page-3"])
}

func TestRun_BoundedConcurrency(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	_, unsub := Subscribe(bus, 16)
	defer unsub()

	var current, peak atomic.Int32
	gen := &trackingGenerator{current: &current, peak: &peak}
	s := New(gen, bus, Options{Workers: 2})

	s.Run(context.Background(), 1, testIdentity(), SelectPages(testStructure(), true), generator.Params{})
	require.LessOrEqual(t, peak.Load(), int32(2))
}

// trackingGenerator measures peak concurrent calls.
type trackingGenerator struct {
	current, peak *atomic.Int32
}

func (g *trackingGenerator) GeneratePage(context.Context, wiki.Identity, wiki.PageDescriptor, generator.Params) (string, error) {
	n := g.current.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	g.current.Add(-1)
	return "ok", nil
}

func TestInFlightSet(t *testing.T) {
	set := NewInFlightSet()
	require.True(t, set.TryAdd("a"))
	require.False(t, set.TryAdd("a"))
	require.True(t, set.TryAdd("b"))
	require.Equal(t, 2, set.Len())
	require.Equal(t, []string{"a", "b"}, set.Snapshot())

	set.Remove("a")
	require.True(t, set.TryAdd("a"))

	set.Remove("missing") // no-op
}

// Subscribe narrows the generic bus subscription for test readability.
func Subscribe(bus *events.Bus, buffer int) (<-chan events.PageResult, func()) {
	return events.Subscribe[events.PageResult](bus, buffer)
}
