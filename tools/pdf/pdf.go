// Package pdf provides pdf_read: plain-text extraction from PDF files in a
// workspace, with optional page ranges.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nevindra/parley"
)

// maxReadChars caps extracted text fed back to the model.
const maxReadChars = 8000

type readArgs struct {
	Path string `json:"path" jsonschema:"required,description=PDF file path relative to the workspace"`
	From int    `json:"from,omitempty" jsonschema:"description=First page to read (1-based; defaults to 1)"`
	To   int    `json:"to,omitempty" jsonschema:"description=Last page to read (inclusive; defaults to the last page)"`
}

// New creates the pdf_read tool restricted to root.
func New(root string) parley.Tool {
	r := &reader{root: root}
	return parley.MustFuncTool("pdf_read",
		"Extract plain text from a PDF in the workspace. Optional 'from'/'to' select a 1-based page range.",
		r.read)
}

type reader struct {
	root string
}

func (r *reader) read(_ context.Context, args readArgs) (*parley.ToolResponse, error) {
	path, err := resolve(r.root, args.Path)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return parley.ErrorResponse("read error: " + err.Error()), nil
	}
	text, err := extract(content, args.From, args.To)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	if text == "" {
		return parley.TextResponse("The PDF contains no extractable text (it may be scanned images)."), nil
	}
	if len(text) > maxReadChars {
		text = text[:maxReadChars] + "\n... (truncated)"
	}
	return parley.TextResponse(text), nil
}

func resolve(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(root, path)
	if !strings.HasPrefix(resolved, root) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

// extract pulls plain text from the pages in [from, to]. Zero bounds default
// to the full document.
func extract(content []byte, from, to int) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	last := r.NumPage()
	if from < 1 {
		from = 1
	}
	if to < 1 || to > last {
		to = last
	}
	if from > to {
		return "", fmt.Errorf("invalid page range %d-%d (document has %d pages)", from, to, last)
	}

	var b strings.Builder
	for i := from; i <= to; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	return strings.TrimSpace(b.String()), nil
}
