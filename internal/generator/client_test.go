package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/retry"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

func testIdentity() wiki.Identity {
	return wiki.Identity{Owner: "acme", Repo: "widget", HostType: "github",
		CanonicalURL: "https://github.com/acme/widget"}
}

func quickPolicy() retry.Policy {
	return retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 2)
}

func TestGenerateStructure_ParsedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/wiki/structure", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "https://github.com/acme/widget", req["repo_url"])
		require.Equal(t, "github", req["type"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "wiki-1",
			"title": "Widget Wiki",
			"pages": []map[string]any{
				{"id": "intro", "title": "Introduction", "importance": "high"},
				{"id": "setup", "title": "Setup", "importance": "low"},
			},
			"sections":     []map[string]any{{"id": "s1", "title": "Start", "pages": []string{"intro"}}},
			"rootSections": []string{"s1"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quickPolicy())
	s, err := client.GenerateStructure(context.Background(), testIdentity(),
		Params{Provider: "google", Model: "gemini-1.5-pro", Language: "en"})
	require.NoError(t, err)
	require.Equal(t, "Widget Wiki", s.Title)
	require.Equal(t, []string{"intro", "setup"}, s.PageIDs())
	require.Equal(t, wiki.ImportanceHigh, s.Pages[0].Importance)
}

func TestGenerateStructure_RequestCarriesPromptContext(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "wiki-1",
			"title": "Widget Wiki",
			"pages": []map[string]any{{"id": "intro", "title": "Introduction"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quickPolicy())
	_, err := client.GenerateStructure(context.Background(), testIdentity(), Params{
		Language: "ja",
		FileTree: []string{"README.md", "main.go"},
		Revision: "abcd1234",
	})
	require.NoError(t, err)

	// The backend's prompts interpolate the display name, not the code.
	require.Equal(t, "Japanese", captured["language_name"])
	require.Equal(t, []any{"README.md", "main.go"}, captured["file_tree"])
	require.Equal(t, "abcd1234", captured["revision"])
}

func TestGenerateStructure_RawBlobFallsBackWhenUnparseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"raw": "no xml here"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quickPolicy())
	s, err := client.GenerateStructure(context.Background(), testIdentity(), Params{Language: "en"})
	require.NoError(t, err)
	require.Equal(t, "Repository Wiki", s.Title)
	require.Len(t, s.Pages, 1)
}

func TestGeneratePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/wiki/page", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		page := req["page"].(map[string]any)
		require.Equal(t, "intro", page["id"])
		require.Equal(t, "English", req["language_name"])

		_ = json.NewEncoder(w).Encode(map[string]any{"content": "# Introduction\n\nHello."})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quickPolicy())
	content, err := client.GeneratePage(context.Background(), testIdentity(),
		wiki.PageDescriptor{ID: "intro", Title: "Introduction"}, Params{Language: "en"})
	require.NoError(t, err)
	require.Contains(t, content, "# Introduction")
}

func TestGeneratePage_ServerErrorRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quickPolicy())
	_, err := client.GeneratePage(context.Background(), testIdentity(),
		wiki.PageDescriptor{ID: "intro"}, Params{})
	require.Error(t, err)
	require.True(t, werrors.IsCategory(err, werrors.CategoryNetwork))
	// initial attempt + MaxRetries
	require.Equal(t, int32(3), calls.Load())
}

func TestGeneratePage_ClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, quickPolicy())
	_, err := client.GeneratePage(context.Background(), testIdentity(),
		wiki.PageDescriptor{ID: "intro"}, Params{})
	require.Error(t, err)
	require.True(t, werrors.IsCategory(err, werrors.CategoryGeneration))
	require.Equal(t, int32(1), calls.Load())
}
