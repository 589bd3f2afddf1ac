package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knowyourdev/knowyourdev/internal/model"
)

const researchRetries = 3

// CreateResearch upserts the dev keyed by its GitHub node id and inserts a
// new research record referencing it, in a single transaction. The returned
// research carries a freshly generated URLID.
func (db *DB) CreateResearch(ctx context.Context, dev model.Dev, prompt string) (model.Research, error) {
	if dev.NodeID == "" {
		return model.Research{}, fmt.Errorf("storage: create research: dev node id is required")
	}
	metadata, err := json.Marshal(dev.Metadata)
	if err != nil {
		return model.Research{}, fmt.Errorf("storage: marshal dev metadata: %w", err)
	}

	var research model.Research
	err = WithRetry(ctx, researchRetries, 10*time.Millisecond, func() error {
		urlID, err := model.NewURLID()
		if err != nil {
			return err
		}

		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin create research: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var devID uuid.UUID
		if err := tx.QueryRow(ctx,
			`INSERT INTO devs (id, node_id, login, name, email, avatar_url, html_url, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (node_id) DO UPDATE SET
			     login = EXCLUDED.login,
			     name = EXCLUDED.name,
			     email = EXCLUDED.email,
			     avatar_url = EXCLUDED.avatar_url,
			     html_url = EXCLUDED.html_url,
			     metadata = EXCLUDED.metadata,
			     updated_at = now()
			 RETURNING id`,
			uuid.New(), dev.NodeID, dev.Login, dev.Name, dev.Email, dev.AvatarURL, dev.HTMLURL, metadata,
		).Scan(&devID); err != nil {
			return fmt.Errorf("storage: upsert dev: %w", err)
		}

		r := model.Research{
			ID:             uuid.New(),
			URLID:          urlID,
			Prompt:         prompt,
			DevID:          devID,
			GitHubUsername: dev.Login,
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO researches (id, url_id, prompt, dev_id)
			 VALUES ($1, $2, $3, $4)
			 RETURNING created_at, updated_at`,
			r.ID, r.URLID, r.Prompt, r.DevID,
		).Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
			return fmt.Errorf("storage: insert research: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit create research: %w", err)
		}
		research = r
		return nil
	})
	if err != nil {
		return model.Research{}, err
	}
	return research, nil
}

// GetResearch returns the research addressed by its public url id.
func (db *DB) GetResearch(ctx context.Context, urlID string) (model.Research, error) {
	var r model.Research
	err := db.pool.QueryRow(ctx,
		`SELECT r.id, r.url_id, r.prompt, r.dev_id, d.login, r.created_at, r.updated_at
		 FROM researches r
		 JOIN devs d ON d.id = r.dev_id
		 WHERE r.url_id = $1`, urlID,
	).Scan(&r.ID, &r.URLID, &r.Prompt, &r.DevID, &r.GitHubUsername, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Research{}, fmt.Errorf("storage: research %s: %w", urlID, ErrNotFound)
		}
		return model.Research{}, fmt.Errorf("storage: get research: %w", err)
	}
	return r, nil
}

// GetDevByNodeID returns the dev with the given GitHub node id.
func (db *DB) GetDevByNodeID(ctx context.Context, nodeID string) (model.Dev, error) {
	var (
		d        model.Dev
		metadata []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, node_id, login, name, email, avatar_url, html_url, metadata, created_at, updated_at
		 FROM devs WHERE node_id = $1`, nodeID,
	).Scan(&d.ID, &d.NodeID, &d.Login, &d.Name, &d.Email, &d.AvatarURL, &d.HTMLURL, &metadata, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Dev{}, fmt.Errorf("storage: dev %s: %w", nodeID, ErrNotFound)
		}
		return model.Dev{}, fmt.Errorf("storage: get dev: %w", err)
	}
	if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
		return model.Dev{}, fmt.Errorf("storage: unmarshal dev metadata: %w", err)
	}
	return d, nil
}
