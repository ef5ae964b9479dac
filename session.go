package parley

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Session persists and restores named state modules (agents, memories)
// under a session id, so a conversation can outlive the process.
type Session interface {
	// Save snapshots every module's state under the session id,
	// overwriting any previous save.
	Save(ctx context.Context, id string, modules map[string]StateModule) error
	// Load restores each module from the saved session. A module absent
	// from the save is left untouched. A missing session is an error
	// unless allowMissing is set.
	Load(ctx context.Context, id string, allowMissing bool, modules map[string]StateModule) error
	// Exists reports whether the session id has a save.
	Exists(ctx context.Context, id string) (bool, error)
	// Delete removes the saved session and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns the saved session ids, sorted.
	List(ctx context.Context) ([]string, error)
}

// JSONSession stores each session as one pretty-printed JSON file named
// <id>.json under a directory. The directory is created on first save.
type JSONSession struct {
	dir string
}

var _ Session = (*JSONSession)(nil)

// NewJSONSession creates a file-backed session store rooted at dir.
func NewJSONSession(dir string) *JSONSession {
	return &JSONSession{dir: dir}
}

func (s *JSONSession) Save(ctx context.Context, id string, modules map[string]StateModule) error {
	if err := validateSessionID(id); err != nil {
		return err
	}
	states := make(map[string]map[string]any, len(modules))
	for name, mod := range modules {
		state, err := mod.StateDict()
		if err != nil {
			return fmt.Errorf("snapshot module %q: %w", name, err)
		}
		states[name] = state
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %q: %w", id, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(id), data, 0o644)
}

func (s *JSONSession) Load(ctx context.Context, id string, allowMissing bool, modules map[string]StateModule) error {
	if err := validateSessionID(id); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		if allowMissing {
			return nil
		}
		return fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return err
	}
	var states map[string]map[string]any
	if err := json.Unmarshal(data, &states); err != nil {
		return fmt.Errorf("decode session %q: %w", id, err)
	}
	for name, mod := range modules {
		state, ok := states[name]
		if !ok {
			continue
		}
		if err := mod.LoadStateDict(state, false); err != nil {
			return fmt.Errorf("restore module %q: %w", name, err)
		}
	}
	return nil
}

func (s *JSONSession) Exists(ctx context.Context, id string) (bool, error) {
	if err := validateSessionID(id); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *JSONSession) Delete(ctx context.Context, id string) (bool, error) {
	if err := validateSessionID(id); err != nil {
		return false, err
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *JSONSession) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *JSONSession) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validateSessionID rejects ids that would escape the session directory or
// collide with the file naming.
func validateSessionID(id string) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("session id %q is not a valid file name", id)
	}
	return nil
}
