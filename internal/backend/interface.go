// Package backend builds the ledger and report store selected by
// DATA_BACKEND.
package backend

import (
	"context"

	"finreport/internal/ports"
)

// CleanupFunc releases a backend's resources.
type CleanupFunc func() error

// Backend is the data source and report sink of one process.
type Backend struct {
	Ledger  ports.LedgerReader
	Reports ports.ReportStore
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (b *Backend) Close() error {
	if b == nil || b.Cleanup == nil {
		return nil
	}
	return b.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// BackendType names a storage implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MongoBackend  BackendType = "mongo"
)

func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	default:
		return false
	}
}

func (t BackendType) String() string {
	return string(t)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend
	SeedFile string

	// SQLite backend
	SQLiteDBPath string

	// Mongo backend
	MongoURI      string
	MongoDatabase string
}
