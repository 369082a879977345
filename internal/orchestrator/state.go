package orchestrator

import "fmt"

// State is the orchestrator's cycle lifecycle. Transitions are linear per
// cycle; Ready and Error are the terminal states, and a new cycle restarts
// from either terminal state or Idle.
type State string

const (
	StateIdle                State = "idle"
	StateLoadingCache        State = "loading_cache"
	StateGeneratingStructure State = "generating_structure"
	StateGeneratingPages     State = "generating_pages"
	StatePersisting          State = "persisting"
	StateReady               State = "ready"
	StateError               State = "error"
)

// Terminal reports whether the state ends a cycle.
func (s State) Terminal() bool {
	return s == StateReady || s == StateError || s == StateIdle
}

// statusTemplates is the single source of user-facing progress text. Status
// strings are derived from state, never assembled ad hoc at call sites.
var statusTemplates = map[State]string{
	StateIdle:                "Idle",
	StateLoadingCache:        "Checking for cached wiki...",
	StateGeneratingStructure: "Determining wiki structure...",
	StateGeneratingPages:     "Generating page content (%d/%d)...",
	StatePersisting:          "Saving wiki to cache...",
	StateReady:               "Wiki ready",
	StateError:               "Error: %s",
}

// statusFor renders the status line for a state. done/total only apply to
// page generation; detail only applies to the error state.
func statusFor(s State, done, total int, detail string) string {
	tmpl, ok := statusTemplates[s]
	if !ok {
		return string(s)
	}
	switch s {
	case StateGeneratingPages:
		return fmt.Sprintf(tmpl, done, total)
	case StateError:
		return fmt.Sprintf(tmpl, detail)
	default:
		return tmpl
	}
}
