// Package testutil starts throwaway PostgreSQL containers for integration
// tests and holds small fixtures shared across packages.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/knowyourdev/knowyourdev/internal/storage"
	"github.com/knowyourdev/knowyourdev/migrations"
)

const (
	postgresImage = "postgres:17-alpine"
	postgresUser  = "kyd"
	postgresPass  = "kyd"
	postgresDB    = "knowyourdev"
)

// Postgres is a running database container.
type Postgres struct {
	container testcontainers.Container
	DSN       string
}

// StartPostgres launches a container and blocks until it accepts connections.
// Callers without a docker daemon get an error and should skip.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresUser,
				"POSTGRES_PASSWORD": postgresPass,
				"POSTGRES_DB":       postgresDB,
			},
			// The entrypoint restarts postgres once after init, so the
			// ready line appears twice.
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start postgres: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: postgres endpoint: %w", err)
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(postgresUser, postgresPass),
		Host:     endpoint,
		Path:     postgresDB,
		RawQuery: "sslmode=disable",
	}
	return &Postgres{container: container, DSN: dsn.String()}, nil
}

// Open connects a storage.DB to the container with the schema migrated.
func (p *Postgres) Open(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, p.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("testutil: migrate: %w", err)
	}
	return db, nil
}

// Stop removes the container.
func (p *Postgres) Stop() {
	_ = p.container.Terminate(context.Background())
}

// TestLogger only surfaces warnings so passing runs stay quiet.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// FixedTime is a stable UTC timestamp for assertions on persisted states.
func FixedTime() time.Time {
	return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
}
