package events

import "time"

// PageResult is emitted once per completed page generation, success or
// failure. Every result carries the epoch it was issued under; the
// orchestrator discards results whose epoch differs from the current one.
type PageResult struct {
	Epoch       uint64
	PageID      string
	Content     string
	Err         error
	Duration    time.Duration
	CompletedAt time.Time
}

// Failed reports whether the generation failed.
func (r PageResult) Failed() bool { return r.Err != nil }

// StateChanged is emitted on every orchestrator state transition.
type StateChanged struct {
	Epoch     uint64
	State     string
	Status    string
	ChangedAt time.Time
}

// CycleCompleted is emitted when a load or refresh cycle reaches a terminal
// state (Ready or Error).
type CycleCompleted struct {
	Epoch       uint64
	CycleID     string
	Outcome     string // "ready" or "error"
	Pages       int
	Failed      int
	CompletedAt time.Time
}
