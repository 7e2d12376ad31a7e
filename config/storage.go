package config

import "fmt"

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StorageConfig defines the storage backend for sessions, archives and events
type StorageConfig struct {
	Backend string `hcl:"backend,optional"` // "memory", "sqlite" or "postgres"
	Path    string `hcl:"path,optional"`    // SQLite file path (default: ".conductor/store.db")
	DSN     string `hcl:"dsn,optional"`     // Postgres connection string
}

// Defaults fills in default values for unset fields
func (s *StorageConfig) Defaults() {
	if s.Backend == "" {
		s.Backend = BackendMemory
	}
	if s.Backend == BackendSQLite && s.Path == "" {
		s.Path = ".conductor/store.db"
	}
}

// Validate checks backend-specific settings
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case BackendMemory, BackendSQLite:
		return nil
	case BackendPostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend '%s' (expected '%s', '%s' or '%s')", s.Backend, BackendMemory, BackendSQLite, BackendPostgres)
	}
}
