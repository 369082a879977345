// Package wiki defines the domain model for generated repository wikis:
// repository identities, page structures, and per-page content lifecycle.
package wiki

import (
	"fmt"
	"strings"
)

// Identity identifies the repository a wiki describes. It is immutable for
// the lifetime of one generation cycle; together with a target language it
// uniquely identifies the wiki subject.
type Identity struct {
	Owner        string `json:"owner" yaml:"owner"`
	Repo         string `json:"repo" yaml:"repo"`
	HostType     string `json:"host_type" yaml:"host_type"` // "github", "gitlab", "bitbucket", "local"
	Token        string `json:"-" yaml:"token,omitempty"`   // never serialized into artifacts or cache records
	LocalPath    string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty" yaml:"canonical_url,omitempty"`
}

// Slug returns a stable owner/repo identifier for logging and cache keys.
func (id Identity) Slug() string {
	return id.Owner + "/" + id.Repo
}

// Validate checks the identity is complete enough to start a cycle.
func (id Identity) Validate() error {
	if id.HostType == "local" {
		if id.LocalPath == "" {
			return fmt.Errorf("local repository requires a path")
		}
		return nil
	}
	if id.Owner == "" || id.Repo == "" {
		return fmt.Errorf("repository identity requires owner and repo")
	}
	return nil
}

// Importance is the tri-level priority used by the load-shedding policy:
// low/medium pages are skipped unless the caller requests full coverage.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// ParseImportance normalizes a raw importance value; unknown values map to
// medium, matching the generation backend's contract.
func ParseImportance(raw string) Importance {
	switch Importance(strings.ToLower(strings.TrimSpace(raw))) {
	case ImportanceHigh:
		return ImportanceHigh
	case ImportanceLow:
		return ImportanceLow
	default:
		return ImportanceMedium
	}
}

// PageDescriptor describes one wiki page within a structure. Immutable once
// the structure is fetched.
type PageDescriptor struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Importance  Importance `json:"importance"`
	FilePaths   []string   `json:"file_paths,omitempty"`
	RelatedIDs  []string   `json:"related_ids,omitempty"`
	ParentID    string     `json:"parent_id,omitempty"`
	ChildIDs    []string   `json:"child_ids,omitempty"`
}

// Section groups pages in the wiki's table of contents.
type Section struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	PageIDs     []string `json:"page_ids,omitempty"`
	Subsections []string `json:"subsections,omitempty"`
}

// Structure is the hierarchical table of contents for one wiki: one instance
// per (identity, language, generation cycle). The declared page order is the
// schedule and navigation order.
type Structure struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Pages        []PageDescriptor `json:"pages"`
	Sections     []Section        `json:"sections,omitempty"`
	RootSections []string         `json:"root_sections,omitempty"`
}

// PageByID returns the descriptor for a page id, if present.
func (s *Structure) PageByID(id string) (PageDescriptor, bool) {
	for _, p := range s.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return PageDescriptor{}, false
}

// PageIDs returns the page ids in declared structure order.
func (s *Structure) PageIDs() []string {
	ids := make([]string, 0, len(s.Pages))
	for _, p := range s.Pages {
		ids = append(ids, p.ID)
	}
	return ids
}

// Validate reports dangling references (related pages, parents, children, and
// section members that resolve to no page). Dangling references are tolerated
// at render time, so violations are returned as warnings and never as an
// error: a malformed structure must not block content generation.
func (s *Structure) Validate() []string {
	known := make(map[string]struct{}, len(s.Pages))
	for _, p := range s.Pages {
		known[p.ID] = struct{}{}
	}

	var warnings []string
	missing := func(from, kind, id string) {
		warnings = append(warnings, fmt.Sprintf("%s: %s reference %q resolves to no page", from, kind, id))
	}

	for _, p := range s.Pages {
		for _, rel := range p.RelatedIDs {
			if _, ok := known[rel]; !ok {
				missing(p.ID, "related", rel)
			}
		}
		if p.ParentID != "" {
			if _, ok := known[p.ParentID]; !ok {
				missing(p.ID, "parent", p.ParentID)
			}
		}
		for _, child := range p.ChildIDs {
			if _, ok := known[child]; !ok {
				missing(p.ID, "child", child)
			}
		}
	}
	for _, sec := range s.Sections {
		for _, pid := range sec.PageIDs {
			if _, ok := known[pid]; !ok {
				missing("section "+sec.ID, "page", pid)
			}
		}
	}
	return warnings
}

// PageState is the lifecycle of a page's content within one cycle.
type PageState string

const (
	// PageStateNotRequested marks pages excluded by the selection policy.
	PageStateNotRequested PageState = "not_requested"
	// PageStatePending marks scheduled pages whose generation has not finished.
	PageStatePending PageState = "pending"
	// PageStateComplete marks pages with generated content.
	PageStateComplete PageState = "complete"
	// PageStateFailed marks pages whose generation failed; Content holds the
	// human-readable error sentinel.
	PageStateFailed PageState = "failed"
)

// Terminal reports whether the state is an end state for the cycle.
func (ps PageState) Terminal() bool {
	return ps == PageStateComplete || ps == PageStateFailed || ps == PageStateNotRequested
}

// PageContent holds the mutable content slot for one page, keyed by page id
// in a map owned exclusively by the orchestrator.
type PageContent struct {
	PageID  string    `json:"page_id"`
	Content string    `json:"content"`
	State   PageState `json:"state"`
}

// PendingContent is the sentinel shown while generation is in flight.
const PendingContent = "Loading..."

// ErrorContent renders the human-readable error sentinel stored for a failed
// page. One bad page must never block the rest of the wiki.
func ErrorContent(cause error) string {
	return "Error generating content: " + cause.Error()
}
