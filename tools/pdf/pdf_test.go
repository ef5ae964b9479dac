package pdf

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPDFReadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "empty.pdf"), nil, 0644)

	tool := New(dir)
	resp, err := tool.Call(context.Background(), map[string]any{"path": "empty.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsError() {
		t.Error("expected error for empty content")
	}
}

func TestPDFReadInvalid(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "fake.pdf"), []byte("this is not a pdf"), 0644)

	tool := New(dir)
	resp, err := tool.Call(context.Background(), map[string]any{"path": "fake.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsError() {
		t.Error("expected error for invalid content")
	}
}

func TestPDFReadMissing(t *testing.T) {
	tool := New(t.TempDir())
	resp, _ := tool.Call(context.Background(), map[string]any{"path": "nope.pdf"})
	if !resp.IsError() {
		t.Error("expected error for missing file")
	}
}

func TestPDFReadTraversal(t *testing.T) {
	tool := New(t.TempDir())
	resp, _ := tool.Call(context.Background(), map[string]any{"path": "../secret.pdf"})
	if !resp.IsError() {
		t.Error("expected path traversal error")
	}
	if !strings.Contains(resp.Text(), "traversal") {
		t.Errorf("unexpected error text: %s", resp.Text())
	}
}

func TestPDFToolSchema(t *testing.T) {
	tool := New(t.TempDir())
	if tool.Name() != "pdf_read" {
		t.Errorf("expected pdf_read, got %s", tool.Name())
	}
	params := tool.Parameters()
	if params["type"] != "object" {
		t.Fatalf("schema is not an object: %v", params)
	}
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatalf("missing properties: %v", params)
	}
	for _, want := range []string{"path", "from", "to"} {
		if _, ok := props[want]; !ok {
			t.Errorf("missing %s property", want)
		}
	}
}

func TestExtractEmptyContent(t *testing.T) {
	if _, err := extract(nil, 0, 0); err == nil {
		t.Error("expected error for empty content")
	}
}
