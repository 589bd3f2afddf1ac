// Package lite is a SQLite-backed store with the same contract as the
// PostgreSQL storage layer. It serves the operator CLI and single-node
// local development.
package lite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/knowyourdev/knowyourdev/internal/model"
	"github.com/knowyourdev/knowyourdev/internal/storage"
)

// Memory is the path for a private in-memory database.
const Memory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS devs (
	id         TEXT PRIMARY KEY,
	node_id    TEXT NOT NULL UNIQUE,
	login      TEXT NOT NULL,
	name       TEXT,
	email      TEXT,
	avatar_url TEXT NOT NULL DEFAULT '',
	html_url   TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS researches (
	id         TEXT PRIMARY KEY,
	url_id     TEXT NOT NULL UNIQUE,
	prompt     TEXT NOT NULL DEFAULT '',
	dev_id     TEXT NOT NULL REFERENCES devs(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_researches_dev_id ON researches(dev_id);

CREATE TABLE IF NOT EXISTS agent_states (
	research_id TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	state       TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// Store implements the research and agent snapshot stores on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != Memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("lite: create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("lite: open database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database
	// shared by every caller.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("lite: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lite: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Kind identifies the backend in health output.
func (s *Store) Kind() string { return "sqlite" }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("lite: parse time %q: %w", v, err)
	}
	return t, nil
}

// CreateResearch upserts the dev by node id and inserts a research for it.
func (s *Store) CreateResearch(ctx context.Context, dev model.Dev, prompt string) (model.Research, error) {
	if dev.NodeID == "" {
		return model.Research{}, fmt.Errorf("lite: create research: dev node id is required")
	}
	metadata, err := json.Marshal(dev.Metadata)
	if err != nil {
		return model.Research{}, fmt.Errorf("lite: marshal dev metadata: %w", err)
	}
	urlID, err := model.NewURLID()
	if err != nil {
		return model.Research{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Research{}, fmt.Errorf("lite: begin create research: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	var devID string
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO devs (id, node_id, login, name, email, avatar_url, html_url, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET
		     login = excluded.login,
		     name = excluded.name,
		     email = excluded.email,
		     avatar_url = excluded.avatar_url,
		     html_url = excluded.html_url,
		     metadata = excluded.metadata,
		     updated_at = excluded.updated_at
		 RETURNING id`,
		uuid.NewString(), dev.NodeID, dev.Login, dev.Name, dev.Email, dev.AvatarURL, dev.HTMLURL, string(metadata), ts, ts,
	).Scan(&devID); err != nil {
		return model.Research{}, fmt.Errorf("lite: upsert dev: %w", err)
	}

	r := model.Research{
		ID:             uuid.New(),
		URLID:          urlID,
		Prompt:         prompt,
		GitHubUsername: dev.Login,
	}
	if r.DevID, err = uuid.Parse(devID); err != nil {
		return model.Research{}, fmt.Errorf("lite: parse dev id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO researches (id, url_id, prompt, dev_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.URLID, r.Prompt, devID, ts, ts,
	); err != nil {
		return model.Research{}, fmt.Errorf("lite: insert research: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Research{}, fmt.Errorf("lite: commit create research: %w", err)
	}

	r.CreatedAt, _ = parseTime(ts)
	r.UpdatedAt = r.CreatedAt
	return r, nil
}

// GetResearch returns the research addressed by its public url id.
func (s *Store) GetResearch(ctx context.Context, urlID string) (model.Research, error) {
	var (
		r                    model.Research
		id, devID            string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.url_id, r.prompt, r.dev_id, d.login, r.created_at, r.updated_at
		 FROM researches r JOIN devs d ON d.id = r.dev_id
		 WHERE r.url_id = ?`, urlID,
	).Scan(&id, &r.URLID, &r.Prompt, &devID, &r.GitHubUsername, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Research{}, fmt.Errorf("lite: research %s: %w", urlID, storage.ErrNotFound)
		}
		return model.Research{}, fmt.Errorf("lite: get research: %w", err)
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return model.Research{}, fmt.Errorf("lite: parse research id: %w", err)
	}
	if r.DevID, err = uuid.Parse(devID); err != nil {
		return model.Research{}, fmt.Errorf("lite: parse dev id: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Research{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Research{}, err
	}
	return r, nil
}

// SaveAgentState stores the latest published state of an agent instance.
func (s *Store) SaveAgentState(ctx context.Context, researchID string, state model.AgentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("lite: marshal agent state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_states (research_id, status, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (research_id) DO UPDATE SET
		     status = excluded.status,
		     state = excluded.state,
		     updated_at = excluded.updated_at`,
		researchID, string(state.Status), string(data), now(),
	); err != nil {
		return fmt.Errorf("lite: save agent state: %w", err)
	}
	return nil
}

// GetAgentState returns the last stored state of an agent instance.
func (s *Store) GetAgentState(ctx context.Context, researchID string) (model.AgentState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM agent_states WHERE research_id = ?`, researchID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AgentState{}, fmt.Errorf("lite: agent state %s: %w", researchID, storage.ErrNotFound)
		}
		return model.AgentState{}, fmt.Errorf("lite: get agent state: %w", err)
	}
	state, err := model.ParseAgentState([]byte(data))
	if err != nil {
		return model.AgentState{}, fmt.Errorf("lite: decode agent state %s: %w", researchID, err)
	}
	return state, nil
}
