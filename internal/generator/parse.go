package generator

import (
	"encoding/xml"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// xmlStructure mirrors the <wiki_structure> document the backend's LLM is
// prompted to produce.
type xmlStructure struct {
	XMLName     xml.Name     `xml:"wiki_structure"`
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	Sections    []xmlSection `xml:"sections>section"`
	Pages       []xmlPage    `xml:"pages>page"`
}

type xmlSection struct {
	ID          string   `xml:"id,attr"`
	Title       string   `xml:"title"`
	PageRefs    []string `xml:"pages>page_ref"`
	SectionRefs []string `xml:"subsections>section_ref"`
}

type xmlPage struct {
	ID           string   `xml:"id,attr"`
	Title        string   `xml:"title"`
	Description  string   `xml:"description"`
	Importance   string   `xml:"importance"`
	FilePaths    []string `xml:"relevant_files>file_path"`
	RelatedPages []string `xml:"related_pages>related"`
}

// ParseStructureBlob extracts the <wiki_structure> XML document from a raw
// LLM response and converts it to the domain structure. Missing titles and
// importance values get the backend's documented defaults.
func ParseStructureBlob(blob string) (*wiki.Structure, error) {
	start := strings.Index(blob, "<wiki_structure>")
	end := strings.LastIndex(blob, "</wiki_structure>")
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("no wiki_structure document in response")
	}
	doc := blob[start : end+len("</wiki_structure>")]

	var parsed xmlStructure
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("parse wiki_structure: %w", err)
	}

	s := &wiki.Structure{
		ID:          "wiki-1",
		Title:       parsed.Title,
		Description: parsed.Description,
	}
	if s.Title == "" {
		s.Title = "Repository Wiki"
	}
	if s.Description == "" {
		s.Description = "A comprehensive wiki for the repository"
	}

	for i, p := range parsed.Pages {
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("page-%d", i+1)
		}
		title := p.Title
		if title == "" {
			title = "Untitled Page"
		}
		s.Pages = append(s.Pages, wiki.PageDescriptor{
			ID:          id,
			Title:       title,
			Description: p.Description,
			Importance:  wiki.ParseImportance(p.Importance),
			FilePaths:   p.FilePaths,
			RelatedIDs:  p.RelatedPages,
		})
	}

	for i, sec := range parsed.Sections {
		id := sec.ID
		if id == "" {
			id = fmt.Sprintf("section-%d", i+1)
		}
		title := sec.Title
		if title == "" {
			title = "Untitled Section"
		}
		s.Sections = append(s.Sections, wiki.Section{
			ID:          id,
			Title:       title,
			PageIDs:     sec.PageRefs,
			Subsections: sec.SectionRefs,
		})
		// The backend does not do subsection bookkeeping; every section is
		// listed as a root section.
		s.RootSections = append(s.RootSections, id)
	}

	return s, nil
}

// FallbackStructure is the canned single-page structure used when the LLM
// response contains no parseable wiki_structure document.
func FallbackStructure() *wiki.Structure {
	return &wiki.Structure{
		ID:          "wiki-1",
		Title:       "Repository Wiki",
		Description: "A comprehensive wiki for the repository",
		Pages: []wiki.PageDescriptor{
			{
				ID:         "page-1",
				Title:      "Introduction",
				Importance: wiki.ImportanceHigh,
				FilePaths:  []string{"README.md"},
			},
		},
		Sections: []wiki.Section{
			{ID: "section-1", Title: "Getting Started", PageIDs: []string{"page-1"}},
		},
		RootSections: []string{"section-1"},
	}
}
