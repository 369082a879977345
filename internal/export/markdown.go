package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/wikigen/internal/wiki"
)

// renderMarkdown produces the single-file markdown export: title block,
// table of contents, then every page in structure order.
func renderMarkdown(doc *Document) []byte {
	var b bytes.Buffer

	title := StripHTML(doc.Structure.Title)
	if title == "" {
		title = doc.Repository.Slug()
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if desc := StripHTML(doc.Structure.Description); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}
	fmt.Fprintf(&b, "*Generated for %s (%s)*\n\n", doc.Repository.Slug(), doc.Language)

	b.WriteString("## Table of Contents\n\n")
	for _, p := range doc.Structure.Pages {
		fmt.Fprintf(&b, "- [%s](#%s)\n", pageTitle(doc.Structure, p.ID, ""), anchor(p.ID))
	}
	b.WriteString("\n")

	for _, pc := range doc.Pages {
		fmt.Fprintf(&b, "<a id=\"%s\"></a>\n\n", anchor(pc.PageID))
		fmt.Fprintf(&b, "## %s\n\n", pageTitle(doc.Structure, pc.PageID, pc.Content))
		switch pc.State {
		case wiki.PageStateComplete, wiki.PageStateFailed:
			b.WriteString(strings.TrimSpace(pc.Content))
			b.WriteString("\n\n")
		default:
			b.WriteString("*No content generated for this page.*\n\n")
		}
		b.WriteString("---\n\n")
	}

	return b.Bytes()
}

// pageTitle resolves a display title: the declared title, else the first
// heading of the generated content, else the page id.
func pageTitle(structure *wiki.Structure, pageID, content string) string {
	if p, ok := structure.PageByID(pageID); ok && p.Title != "" {
		return StripHTML(p.Title)
	}
	if h := FirstHeading(content); h != "" {
		return h
	}
	return pageID
}

// FirstHeading returns the text of the first heading in a markdown document,
// or "" when there is none.
func FirstHeading(markdown string) string {
	if markdown == "" {
		return ""
	}
	source := []byte(markdown)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var heading string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			var sb strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					sb.Write(t.Segment.Value(source))
				}
			}
			heading = strings.TrimSpace(sb.String())
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return heading
}

// StripHTML removes markup from backend-supplied titles and descriptions,
// keeping only text content. Plain strings pass through unchanged.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return strings.TrimSpace(s)
	}
	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			sb.Write(tokenizer.Text())
		}
	}
}

// anchor derives a stable markdown anchor from a page id.
func anchor(pageID string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(pageID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	return "page-" + sb.String()
}
