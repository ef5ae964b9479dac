// Package postgres implements parley.Session backed by PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	parley "github.com/nevindra/parley"
)

// Store implements parley.Session with one row per session holding the
// JSON-encoded module states.
type Store struct {
	pool *pgxpool.Pool
}

var _ parley.Session = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the sessions table. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state JSONB NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	return nil
}

// Save snapshots every module's state under the session id, overwriting
// any previous save.
func (s *Store) Save(ctx context.Context, id string, modules map[string]parley.StateModule) error {
	if id == "" {
		return errors.New("session id is empty")
	}
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET
		   state = EXCLUDED.state,
		   updated_at = EXCLUDED.updated_at`,
		id, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("postgres: save session: %w", err)
	}
	return nil
}

// Load restores each module from the saved session. A module absent from
// the save is left untouched. A missing session is an error unless
// allowMissing is set.
func (s *Store) Load(ctx context.Context, id string, allowMissing bool, modules map[string]parley.StateModule) error {
	if id == "" {
		return errors.New("session id is empty")
	}
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM sessions WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		if allowMissing {
			return nil
		}
		return fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("postgres: load session: %w", err)
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

// Exists reports whether the session id has a save.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("session id is empty")
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: session exists: %w", err)
	}
	return exists, nil
}

// Delete removes the saved session and reports whether one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("session id is empty")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the saved session ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate sessions: %w", err)
	}
	return ids, nil
}
