// Package server exposes the serve-mode HTTP surface: health, per-wiki
// status, page content, on-demand page selection, refresh triggers, exports,
// and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"git.home.luguber.info/inful/wikigen/internal/daemon"
	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/export"
	"git.home.luguber.info/inful/wikigen/internal/metrics"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Server is the HTTP front of a running daemon.
type Server struct {
	daemon *daemon.Daemon
	http   *http.Server
}

// New builds the server on the given listen address.
func New(d *daemon.Daemon, addr string) *Server {
	s := &Server{daemon: d}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /wiki/page", s.handlePage)
	mux.HandleFunc("POST /wiki/page/select", s.handleSelectPage)
	mux.HandleFunc("POST /wiki/refresh", s.handleRefresh)
	mux.HandleFunc("GET /wiki/export", s.handleExport)
	mux.Handle("GET /metrics", metrics.HTTPHandler(d.Registry()))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("HTTP server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entryStatus is the per-wiki status document.
type entryStatus struct {
	Repo     string `json:"repo"`
	Language string `json:"language"`
	State    string `json:"state"`
	Status   string `json:"status"`
	Epoch    uint64 `json:"epoch"`
	CycleID  string `json:"cycle_id,omitempty"`
	Pages    int    `json:"pages"`
	Complete int    `json:"complete"`
	Failed   int    `json:"failed"`
	InFlight int    `json:"in_flight"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	entries := s.daemon.Entries()
	statuses := make([]entryStatus, 0, len(entries))
	for _, e := range entries {
		snap := e.Orch.Snapshot()
		st := entryStatus{
			Repo:     e.Identity.Slug(),
			Language: e.Language,
			State:    string(snap.State),
			Status:   snap.Status,
			Epoch:    snap.Epoch,
			CycleID:  snap.CycleID,
			Pages:    len(snap.Pages),
			InFlight: len(snap.InFlight),
		}
		for _, pc := range snap.Pages {
			switch pc.State {
			case wiki.PageStateComplete:
				st.Complete++
			case wiki.PageStateFailed:
				st.Failed++
			}
		}
		if snap.Err != nil {
			st.Error = snap.Err.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Repo != statuses[j].Repo {
			return statuses[i].Repo < statuses[j].Repo
		}
		return statuses[i].Language < statuses[j].Language
	})
	writeJSON(w, http.StatusOK, statuses)
}

// lookup resolves the entry addressed by the owner/repo/language query.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *daemon.Entry {
	owner := r.URL.Query().Get("owner")
	repoName := r.URL.Query().Get("repo")
	language := r.URL.Query().Get("language")
	if language == "" {
		language = "en"
	}
	if owner == "" || repoName == "" {
		writeError(w, http.StatusBadRequest, "owner and repo query parameters are required")
		return nil
	}
	entry := s.daemon.Lookup(owner, repoName, language)
	if entry == nil {
		writeError(w, http.StatusNotFound, "no such wiki: "+owner+"/"+repoName+"@"+language)
		return nil
	}
	return entry
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	entry := s.lookup(w, r)
	if entry == nil {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	snap := entry.Orch.Snapshot()
	pc, ok := snap.Pages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "no such page: "+id)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (s *Server) handleSelectPage(w http.ResponseWriter, r *http.Request) {
	entry := s.lookup(w, r)
	if entry == nil {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	if err := entry.Orch.SelectPage(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"page_id": id, "status": "scheduled"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	entry := s.lookup(w, r)
	if entry == nil {
		return
	}
	// Refresh runs in the background; progress is visible via /status.
	go func() {
		if err := entry.Orch.Refresh(context.WithoutCancel(r.Context())); err != nil {
			slog.Error("Refresh failed", "repo", entry.Identity.Slug(), "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	entry := s.lookup(w, r)
	if entry == nil {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := entry.Orch.Snapshot()
	artifact, err := export.Export(entry.Identity, entry.Language, snap.Structure, snap.Pages, format)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+artifact.Filename+"\"")
	w.Header().Set("X-Artifact-Id", artifact.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

// statusFor maps the failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case werrors.IsCategory(err, werrors.CategoryValidation):
		return http.StatusBadRequest
	case werrors.IsCategory(err, werrors.CategoryExport):
		return http.StatusConflict
	case werrors.IsCategory(err, werrors.CategoryStructure),
		werrors.IsCategory(err, werrors.CategoryNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
