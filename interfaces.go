package knowyourdev

import (
	"github.com/knowyourdev/knowyourdev/internal/agent"
	"github.com/knowyourdev/knowyourdev/internal/research"
	"github.com/knowyourdev/knowyourdev/internal/server"
)

// Store is the persistence contract shared by the PostgreSQL and SQLite
// backends: research records, agent snapshots and a health check.
type Store interface {
	research.Store
	agent.SnapshotStore
	server.Pinger
	Close() error
}
