// Package generator is the HTTP client for the content generation service:
// structure generation for a repository and content generation for single pages.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/retry"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Params carries the model/provider selection and exclusion lists for one
// generation cycle. FileTree and Revision are filled for repositories on
// disk, where the backend cannot list the files itself.
type Params struct {
	Provider      string
	Model         string
	Language      string
	ExcludedDirs  []string
	ExcludedFiles []string
	FileTree      []string
	Revision      string
}

// StructureGenerator produces a page structure for a repository.
type StructureGenerator interface {
	GenerateStructure(ctx context.Context, identity wiki.Identity, params Params) (*wiki.Structure, error)
}

// PageGenerator produces rendered content for a single page.
type PageGenerator interface {
	GeneratePage(ctx context.Context, identity wiki.Identity, page wiki.PageDescriptor, params Params) (string, error)
}

// structureRequest is the wire shape of the structure-generation request.
// language_name carries the display name the backend's prompts interpolate.
type structureRequest struct {
	RepoURL       string   `json:"repo_url"`
	Language      string   `json:"language"`
	LanguageName  string   `json:"language_name"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	ExcludedDirs  []string `json:"excluded_dirs,omitempty"`
	ExcludedFiles []string `json:"excluded_files,omitempty"`
	FileTree      []string `json:"file_tree,omitempty"`
	Revision      string   `json:"revision,omitempty"`
	Token         string   `json:"token,omitempty"`
	Type          string   `json:"type,omitempty"`
}

// pageRequest is the wire shape of the page-generation request.
type pageRequest struct {
	RepoURL      string         `json:"repo_url"`
	Page         map[string]any `json:"page"`
	Language     string         `json:"language"`
	LanguageName string         `json:"language_name"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Token        string         `json:"token,omitempty"`
	Type         string         `json:"type,omitempty"`
}

// pageResponse is the wire shape of the page-generation response.
type pageResponse struct {
	Content string `json:"content"`
}

// structureResponse is the wire shape of the structure-generation response.
// The backend either returns the parsed structure directly or a raw LLM blob
// containing a <wiki_structure> XML document.
type structureResponse struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Pages        []structurePage  `json:"pages"`
	Sections     []wireSection    `json:"sections"`
	RootSections []string         `json:"rootSections"`
	Raw          string           `json:"raw,omitempty"`
}

type structurePage struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Importance   string   `json:"importance"`
	FilePaths    []string `json:"filePaths"`
	RelatedPages []string `json:"relatedPages"`
	ParentID     string   `json:"parentId,omitempty"`
}

type wireSection struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Pages       []string `json:"pages"`
	Subsections []string `json:"subsections"`
}

// Client talks to the content generation service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
}

// NewClient creates a generation service client. The timeout bounds a single
// request; retries follow the policy for network-category failures only.
func NewClient(baseURL string, timeout time.Duration, policy retry.Policy) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		policy:  policy,
	}
}

// GenerateStructure requests a wiki structure for the repository. The raw LLM
// response is parsed for a <wiki_structure> XML document; when none is found
// the backend's canned fallback structure is used.
func (c *Client) GenerateStructure(ctx context.Context, identity wiki.Identity, params Params) (*wiki.Structure, error) {
	req := structureRequest{
		RepoURL:       repoURL(identity),
		Language:      params.Language,
		LanguageName:  wiki.LanguageName(params.Language),
		Provider:      params.Provider,
		Model:         params.Model,
		ExcludedDirs:  params.ExcludedDirs,
		ExcludedFiles: params.ExcludedFiles,
		FileTree:      params.FileTree,
		Revision:      params.Revision,
		Token:         identity.Token,
		Type:          identity.HostType,
	}

	var resp structureResponse
	if err := c.post(ctx, "/api/wiki/structure", req, &resp); err != nil {
		return nil, err
	}

	if resp.Raw != "" && len(resp.Pages) == 0 {
		structure, err := ParseStructureBlob(resp.Raw)
		if err != nil {
			slog.Warn("Structure response had no parseable XML, using fallback structure",
				"repo", identity.Slug(), "error", err)
			structure = FallbackStructure()
		}
		return structure, nil
	}

	return resp.toStructure(), nil
}

// GeneratePage requests rendered content for a single page.
func (c *Client) GeneratePage(ctx context.Context, identity wiki.Identity, page wiki.PageDescriptor, params Params) (string, error) {
	req := pageRequest{
		RepoURL: repoURL(identity),
		Page: map[string]any{
			"id":        page.ID,
			"title":     page.Title,
			"filePaths": page.FilePaths,
		},
		Language:     params.Language,
		LanguageName: wiki.LanguageName(params.Language),
		Provider:     params.Provider,
		Model:        params.Model,
		Token:        identity.Token,
		Type:         identity.HostType,
	}

	var resp pageResponse
	if err := c.post(ctx, "/api/wiki/page", req, &resp); err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", werrors.New(werrors.CategoryGeneration, werrors.SeverityError, "backend returned empty content").
			WithContext("page_id", page.ID)
	}
	return resp.Content, nil
}

// post sends a JSON request and decodes the JSON response, retrying
// network-category failures according to the policy.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return werrors.Wrap(err, werrors.CategoryInternal, werrors.SeverityError, "marshal request")
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := c.policy.Delay(attempt)
			slog.Debug("Retrying generation request", "path", path, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return werrors.Wrap(ctx.Err(), werrors.CategoryNetwork, werrors.SeverityError, "request canceled")
			}
		}

		lastErr = c.doPost(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !werrors.IsRetryable(lastErr) || attempt >= c.policy.MaxRetries {
			return lastErr
		}
	}
}

func (c *Client) doPost(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return werrors.Wrap(err, werrors.CategoryInternal, werrors.SeverityError, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return werrors.WrapRetryable(err, werrors.CategoryNetwork, werrors.SeverityError, "generation service unreachable")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return werrors.Retryable(werrors.CategoryNetwork, werrors.SeverityError,
			fmt.Sprintf("generation service returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return werrors.New(werrors.CategoryGeneration, werrors.SeverityError,
			fmt.Sprintf("generation service returned %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return werrors.Wrap(err, werrors.CategoryGeneration, werrors.SeverityError, "decode response")
	}
	return nil
}

// repoURL selects what the backend should fetch: the canonical URL when known,
// otherwise the local path or the owner/repo slug.
func repoURL(identity wiki.Identity) string {
	if identity.CanonicalURL != "" {
		return identity.CanonicalURL
	}
	if identity.HostType == "local" {
		return identity.LocalPath
	}
	return identity.Slug()
}

func (r structureResponse) toStructure() *wiki.Structure {
	s := &wiki.Structure{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		RootSections: r.RootSections,
	}
	for _, p := range r.Pages {
		s.Pages = append(s.Pages, wiki.PageDescriptor{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Importance:  wiki.ParseImportance(p.Importance),
			FilePaths:   p.FilePaths,
			RelatedIDs:  p.RelatedPages,
			ParentID:    p.ParentID,
		})
	}
	for _, sec := range r.Sections {
		s.Sections = append(s.Sections, wiki.Section{
			ID:          sec.ID,
			Title:       sec.Title,
			PageIDs:     sec.Pages,
			Subsections: sec.Subsections,
		})
	}
	return s
}
