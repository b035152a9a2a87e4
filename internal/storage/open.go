package storage

import "fmt"

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open returns the repository for backend. dsn is a file path for sqlite
// and a connection string for postgres.
func Open(backend, dsn string) (Repository, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryRepository(), nil
	case BackendSQLite:
		return NewSQLiteRepository(dsn)
	case BackendPostgres:
		return NewPostgresRepository(dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
