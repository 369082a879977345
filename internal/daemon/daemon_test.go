package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikigen/internal/config"
	"git.home.luguber.info/inful/wikigen/internal/orchestrator"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// fakeBackend serves the generation service API for tests.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/wiki/structure", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "wiki-1",
			"title": "Test Wiki",
			"pages": []map[string]any{
				{"id": "overview", "title": "Overview", "importance": "high"},
				{"id": "details", "title": "Details", "importance": "low"},
			},
		})
	})
	mux.HandleFunc("/api/wiki/page", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Page map[string]any `json:"page"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": "# " + req.Page["title"].(string),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, endpoint string, repos ...config.Repository) *config.Config {
	t.Helper()
	cfg := &config.Config{Repositories: repos}
	cfg.Generator.Endpoint = endpoint
	cfg.Generator.Provider = "google"
	cfg.Generator.Model = "gemini-1.5-pro"
	cfg.Generator.ViewMode = config.ViewModePriority
	cfg.Cache.Backend = "sqlite"
	cfg.Cache.Path = ":memory:"
	cfg.Scheduler.Workers = 2
	for i := range cfg.Repositories {
		if cfg.Repositories[i].Language == "" {
			cfg.Repositories[i].Language = "en"
		}
	}
	return cfg
}

func TestDaemon_StartLoadsAllEntries(t *testing.T) {
	backend := fakeBackend(t)
	cfg := testConfig(t, backend.URL,
		config.Repository{URL: "https://github.com/acme/widget", Language: "en"})

	d, err := New(cfg, "")
	require.NoError(t, err)
	defer d.Stop()

	require.NoError(t, d.Start(context.Background()))

	entry := d.Lookup("acme", "widget", "en")
	require.NotNil(t, entry)

	snap := entry.Orch.Snapshot()
	require.Equal(t, orchestrator.StateReady, snap.State)
	require.Equal(t, wiki.PageStateComplete, snap.Pages["overview"].State)
	require.Equal(t, wiki.PageStateNotRequested, snap.Pages["details"].State)
}

func TestDaemon_LookupMissesUnknownLanguage(t *testing.T) {
	backend := fakeBackend(t)
	cfg := testConfig(t, backend.URL,
		config.Repository{URL: "https://github.com/acme/widget", Language: "en"})

	d, err := New(cfg, "")
	require.NoError(t, err)
	defer d.Stop()

	require.Nil(t, d.Lookup("acme", "widget", "ja"))
	require.Nil(t, d.Lookup("acme", "other", "en"))
}

func TestDaemon_ReloadReconcilesEntries(t *testing.T) {
	backend := fakeBackend(t)
	cfg := testConfig(t, backend.URL,
		config.Repository{URL: "https://github.com/acme/widget", Language: "en"})

	d, err := New(cfg, "")
	require.NoError(t, err)
	defer d.Stop()
	require.NoError(t, d.Start(context.Background()))

	next := testConfig(t, backend.URL,
		config.Repository{URL: "https://github.com/acme/gadget", Language: "en"})
	require.NoError(t, d.Reload(context.Background(), next))

	require.Nil(t, d.Lookup("acme", "widget", "en"))
	added := d.Lookup("acme", "gadget", "en")
	require.NotNil(t, added)
	require.Equal(t, orchestrator.StateReady, added.Orch.Snapshot().State)
}

func TestDaemon_RejectsUnparseableRepository(t *testing.T) {
	backend := fakeBackend(t)
	cfg := testConfig(t, backend.URL, config.Repository{URL: "https://github.com/no-repo", Language: "en"})

	_, err := New(cfg, "")
	require.Error(t, err)
}

func TestEntryKey(t *testing.T) {
	e := &Entry{Identity: wiki.Identity{Owner: "acme", Repo: "widget"}, Language: "ja"}
	require.Equal(t, "acme/widget@ja", e.Key())
}
