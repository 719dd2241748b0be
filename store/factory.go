package store

import (
	"errors"
	"fmt"

	"productsapi/domain"
)

// NewStore constructs a domain.Store by kind: "memory", "sqlite" or "mysql".
// For SQL stores dsn is the database path or connection string; for memory
// it is ignored. SQL statements are logged when verbose is set.
func NewStore(kind, dsn string, verbose bool) (domain.Store, error) {
	switch kind {
	case "memory", "mem":
		return NewInMemoryStore(), nil
	case "sqlite":
		if dsn == "" {
			return nil, fmt.Errorf("database path required for sqlite store")
		}
		s, err := NewGormStore(SQLiteDialector(dsn), verbose)
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer; serialise access through one connection
		if err := limitOpenConns(s, 1); err != nil {
			return nil, err
		}
		return s, nil
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("connection string required for mysql store")
		}
		dialector, err := MySQLDialector(dsn)
		if err != nil {
			return nil, err
		}
		return NewGormStore(dialector, verbose)
	default:
		return nil, fmt.Errorf("unknown store kind: %s", kind)
	}
}

// limitOpenConns caps the connection pool of s. s is closed when its pool
// cannot be reached.
func limitOpenConns(s *GormStore, n int) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Join(fmt.Errorf("configure connection pool: %w", err), s.Close())
	}
	sqlDB.SetMaxOpenConns(n)
	return nil
}
