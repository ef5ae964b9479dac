// Package sqlite implements parley.Session using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	parley "github.com/nevindra/parley"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements parley.Session backed by a local SQLite file. Each
// session is one row holding the JSON-encoded module states.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ parley.Session = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: session store opened", "path", dbPath)
	return s
}

// Init creates the sessions table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Save snapshots every module's state under the session id, overwriting
// any previous save.
func (s *Store) Save(ctx context.Context, id string, modules map[string]parley.StateModule) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	start := time.Now()
	s.logger.Debug("sqlite: save session", "id", id, "modules", len(modules))

	states := make(map[string]map[string]any, len(modules))
	for name, mod := range modules {
		state, err := mod.StateDict()
		if err != nil {
			return fmt.Errorf("snapshot module %q: %w", name, err)
		}
		states[name] = state
	}
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, state, updated_at) VALUES (?, ?, ?)`,
		id, string(data), time.Now().Unix(),
	)
	if err != nil {
		s.logger.Error("sqlite: save session failed", "id", id, "error", err, "duration", time.Since(start))
		return fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug("sqlite: save session ok", "id", id, "duration", time.Since(start))
	return nil
}

// Load restores each module from the saved session. A module absent from
// the save is left untouched. A missing session is an error unless
// allowMissing is set.
func (s *Store) Load(ctx context.Context, id string, allowMissing bool, modules map[string]parley.StateModule) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	start := time.Now()
	s.logger.Debug("sqlite: load session", "id", id, "modules", len(modules))

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		if allowMissing {
			s.logger.Debug("sqlite: load session not found", "id", id, "duration", time.Since(start))
			return nil
		}
		return fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		s.logger.Error("sqlite: load session failed", "id", id, "error", err, "duration", time.Since(start))
		return fmt.Errorf("load session: %w", err)
	}

	var states map[string]map[string]any
	if err := json.Unmarshal([]byte(data), &states); err != nil {
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
	s.logger.Debug("sqlite: load session ok", "id", id, "duration", time.Since(start))
	return nil
}

// Exists reports whether the session id has a save.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("session id is empty")
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return true, nil
}

// Delete removes the saved session and reports whether one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("session id is empty")
	}
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		s.logger.Error("sqlite: delete session failed", "id", id, "error", err, "duration", time.Since(start))
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	s.logger.Debug("sqlite: delete session ok", "id", id, "deleted", n > 0, "duration", time.Since(start))
	return n > 0, nil
}

// List returns the saved session ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing session store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}
