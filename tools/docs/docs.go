// Package docs provides docs_search: ranked full-text search over a
// directory of markdown documentation. Files are segmented into sections at
// their headings and the best-scoring sections are returned with snippets.
package docs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/nevindra/parley"
)

// Section is one heading-delimited slice of a markdown file.
type Section struct {
	File  string // path relative to the docs root
	Title string
	Level int
	Body  string
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Search query (case-insensitive keywords)"`
}

// New loads and indexes every .md file under dir and returns the docs_search
// tool. The index is built once; files changed afterwards are not picked up.
func New(dir string) (parley.Tool, error) {
	sections, err := loadDir(dir)
	if err != nil {
		return nil, err
	}
	idx := newIndex(sections)
	return parley.MustFuncTool("docs_search",
		"Search the documentation by keyword. Returns the best matching sections with their source files.",
		func(_ context.Context, args searchArgs) (*parley.ToolResponse, error) {
			if strings.TrimSpace(args.Query) == "" {
				return parley.ErrorResponse("query is required"), nil
			}
			return parley.TextResponse(formatResults(args.Query, idx.search(args.Query))), nil
		}), nil
}

// loadDir walks dir for markdown files and splits each into sections.
// Unreadable files are skipped.
func loadDir(dir string) ([]Section, error) {
	var sections []Section
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		sections = append(sections, parseSections(rel, source)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docs: load %s: %w", dir, err)
	}
	return sections, nil
}

// parseSections splits a markdown document at its headings using the parsed
// AST, so heading-looking lines inside code fences don't start a section.
func parseSections(file string, source []byte) []Section {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	type mark struct {
		level     int
		title     string
		headStart int // offset of the heading's first line
		bodyStart int // offset just past the heading's last line
	}
	var marks []mark
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		first := h.Lines().At(0)
		last := h.Lines().At(h.Lines().Len() - 1)
		marks = append(marks, mark{
			level:     h.Level,
			title:     nodeText(h, source),
			headStart: lineStart(source, first.Start),
			bodyStart: lineEnd(source, last.Stop),
		})
		return ast.WalkContinue, nil
	})

	fileTitle := toTitle(strings.TrimSuffix(filepath.Base(file), ".md"))
	if len(marks) == 0 {
		body := strings.TrimSpace(string(source))
		if body == "" {
			return nil
		}
		return []Section{{File: file, Title: fileTitle, Level: 1, Body: body}}
	}

	var sections []Section
	if head := strings.TrimSpace(string(source[:marks[0].headStart])); head != "" {
		sections = append(sections, Section{File: file, Title: fileTitle, Level: 1, Body: head})
	}
	for i, m := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].headStart
		}
		sections = append(sections, Section{
			File:  file,
			Title: m.title,
			Level: m.level,
			Body:  strings.TrimSpace(string(source[m.bodyStart:end])),
		})
	}
	return sections
}

// nodeText collects the plain text of a node's children.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(nodeText(c, source))
		}
	}
	return b.String()
}

func lineStart(source []byte, off int) int {
	for off > 0 && source[off-1] != '\n' {
		off--
	}
	return off
}

func lineEnd(source []byte, off int) int {
	for off < len(source) && source[off] != '\n' {
		off++
	}
	if off < len(source) {
		off++
	}
	return off
}

// toTitle converts a slug like "input-handler" to "Input Handler".
func toTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
