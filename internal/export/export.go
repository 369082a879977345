// Package export serializes a finished wiki into downloadable artifacts.
// Page order in every format follows the declared structure order.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	werrors "git.home.luguber.info/inful/wikigen/internal/errors"
	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// Format selects the artifact serialization.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat normalizes a raw format value.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", werrors.ValidationError("unsupported export format: " + raw)
	}
}

// Artifact is one exported wiki document.
type Artifact struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
}

// Document is the JSON export shape. It round-trips through Import.
type Document struct {
	Repository  wiki.Identity      `json:"repository"`
	Language    string             `json:"language"`
	GeneratedAt time.Time          `json:"generated_at"`
	Structure   *wiki.Structure    `json:"structure"`
	Pages       []wiki.PageContent `json:"pages"`
}

// Export serializes the wiki. It fails synchronously when no structure is
// available; everything else degrades (missing pages appear as not requested).
func Export(identity wiki.Identity, language string, structure *wiki.Structure, pages map[string]wiki.PageContent, format Format) (*Artifact, error) {
	if structure == nil {
		return nil, werrors.ExportUnavailable("no wiki structure available to export")
	}

	doc := &Document{
		Repository:  identity,
		Language:    language,
		GeneratedAt: time.Now().UTC(),
		Structure:   structure,
		Pages:       orderedPages(structure, pages),
	}

	var (
		data        []byte
		contentType string
		ext         string
		err         error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
		contentType, ext = "application/json", "json"
	case FormatMarkdown:
		data = renderMarkdown(doc)
		contentType, ext = "text/markdown", "md"
	default:
		return nil, werrors.ValidationError("unsupported export format: " + string(format))
	}
	if err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryExport, werrors.SeverityError, "serialize wiki")
	}

	return &Artifact{
		ID:          uuid.NewString(),
		Filename:    fmt.Sprintf("%s_%s_wiki_%s.%s", identity.Owner, identity.Repo, language, ext),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// Import parses a JSON export back into a document.
func Import(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, werrors.Wrap(err, werrors.CategoryExport, werrors.SeverityError, "parse wiki export")
	}
	if doc.Structure == nil {
		return nil, werrors.ValidationError("export document has no structure")
	}
	return &doc, nil
}

// orderedPages materializes the content list in declared structure order.
// Pages with no content entry are emitted as not requested so the export is
// complete relative to the structure.
func orderedPages(structure *wiki.Structure, pages map[string]wiki.PageContent) []wiki.PageContent {
	out := make([]wiki.PageContent, 0, len(structure.Pages))
	for _, p := range structure.Pages {
		if pc, ok := pages[p.ID]; ok {
			out = append(out, pc)
			continue
		}
		out = append(out, wiki.PageContent{PageID: p.ID, State: wiki.PageStateNotRequested})
	}
	return out
}
