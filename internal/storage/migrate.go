package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"

	"github.com/jackc/pgx/v5"
)

// migrationLockKey serializes concurrent RunMigrations calls across replicas.
const migrationLockKey int64 = 0x6b7964 // "kyd"

type migration struct {
	name     string
	sql      string
	checksum string
}

// RunMigrations applies every *.sql file in migrationsFS that is not yet
// recorded in schema_migrations, in lexical order. Each file runs in its own
// transaction together with its bookkeeping row. A recorded file whose
// contents have since changed is an error.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	all, err := readMigrations(migrationsFS)
	if err != nil {
		return err
	}

	if _, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied, err := db.appliedChecksums(ctx)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	var pending []migration
	for _, m := range all {
		sum, ok := applied[m.name]
		switch {
		case !ok:
			pending = append(pending, m)
		case sum != "" && sum != m.checksum:
			return fmt.Errorf("storage: migration %s was modified after it was applied", m.name)
		}
	}
	if len(pending) == 0 {
		db.logger.Debug("storage: schema up to date", "migrations", len(all))
		return nil
	}

	for _, m := range pending {
		db.logger.Info("storage: applying migration", "file", m.name)
		if err := db.apply(ctx, m); err != nil {
			return err
		}
	}
	db.logger.Info("storage: migrations applied", "count", len(pending))
	return nil
}

func readMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("storage: list migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("storage: read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			name:     path.Base(name),
			sql:      string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	return out, nil
}

func (db *DB) appliedChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	type row struct {
		Version  string
		Checksum string
	}
	recorded, err := pgx.CollectRows(rows, pgx.RowToStructByPos[row])
	if err != nil {
		return nil, err
	}
	applied := make(map[string]string, len(recorded))
	for _, r := range recorded {
		applied[r.Version] = r.Checksum
	}
	return applied, nil
}

// apply runs one migration under a transaction-scoped advisory lock. Another
// replica that already applied the same file makes the insert a no-op, and the
// file's statements are skipped.
func (db *DB) apply(ctx context.Context, m migration) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("storage: lock for migration %s: %w", m.name, err)
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("storage: check migration %s: %w", m.name, err)
		}
		if exists {
			return nil
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, m.name, m.checksum,
		); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", m.name, err)
		}
		return nil
	})
}
