// Package file provides workspace-scoped file tools: file_read, file_write,
// file_list, file_delete, and file_stat. Paths are relative to the workspace
// root; absolute paths and traversal are rejected.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nevindra/parley"
)

// maxReadChars caps file_read content fed back to the model.
const maxReadChars = 8000

// Workspace scopes the file tools to a root directory.
type Workspace struct {
	root string
}

// New creates file tools restricted to root.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Tools returns the file tools for registration with an agent or a Toolkit.
func (w *Workspace) Tools() []parley.Tool {
	return []parley.Tool{
		parley.MustFuncTool("file_read",
			"Read a file from the workspace. Returns the file content (truncated to 8000 chars if large).",
			w.read),
		parley.MustFuncTool("file_write",
			"Write content to a file in the workspace. Creates parent directories if needed.",
			w.write),
		parley.MustFuncTool("file_list",
			"List a workspace directory. Returns one entry per line as '<file|dir>\\t<name>'.",
			w.list),
		parley.MustFuncTool("file_delete",
			"Delete a file or an empty directory from the workspace.",
			w.remove),
		parley.MustFuncTool("file_stat",
			"Get name, type, size, and modification time of a workspace path as JSON.",
			w.stat),
	}
}

type pathArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path relative to the workspace"`
}

type writeArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path relative to the workspace"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

type listArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list; defaults to the workspace root"`
}

func (w *Workspace) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(w.root, path)
	// Double-check it's still within the workspace.
	if !strings.HasPrefix(resolved, w.root) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (w *Workspace) read(_ context.Context, args pathArgs) (*parley.ToolResponse, error) {
	path, err := w.resolve(args.Path)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return parley.ErrorResponse("read error: " + err.Error()), nil
	}
	content := string(data)
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + "\n... (truncated)"
	}
	return parley.TextResponse(content), nil
}

func (w *Workspace) write(_ context.Context, args writeArgs) (*parley.ToolResponse, error) {
	path, err := w.resolve(args.Path)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return parley.ErrorResponse("mkdir error: " + err.Error()), nil
	}
	if err := os.WriteFile(path, []byte(args.Content), 0o644); err != nil {
		return parley.ErrorResponse("write error: " + err.Error()), nil
	}
	return parley.TextResponse(fmt.Sprintf("Written %d bytes to %s", len(args.Content), filepath.Base(path))), nil
}

func (w *Workspace) list(_ context.Context, args listArgs) (*parley.ToolResponse, error) {
	dir := args.Path
	if dir == "" {
		dir = "."
	}
	path, err := w.resolve(dir)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return parley.ErrorResponse("list error: " + err.Error()), nil
	}
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%s\t%s\n", kind, e.Name())
	}
	return parley.TextResponse(strings.TrimRight(b.String(), "\n")), nil
}

func (w *Workspace) remove(_ context.Context, args pathArgs) (*parley.ToolResponse, error) {
	path, err := w.resolve(args.Path)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	if err := os.Remove(path); err != nil {
		return parley.ErrorResponse("delete error: " + err.Error()), nil
	}
	return parley.TextResponse("Deleted " + args.Path), nil
}

func (w *Workspace) stat(_ context.Context, args pathArgs) (*parley.ToolResponse, error) {
	path, err := w.resolve(args.Path)
	if err != nil {
		return parley.ErrorResponse(err.Error()), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return parley.ErrorResponse("stat error: " + err.Error()), nil
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	out, err := json.Marshal(map[string]any{
		"name":     info.Name(),
		"type":     kind,
		"size":     info.Size(),
		"modified": info.ModTime().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return parley.TextResponse(string(out)), nil
}
