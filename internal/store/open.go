package store

import (
	"context"
	"fmt"
)

// Open connects the backend named by driver ("postgres", "sqlite" or
// "memory") and brings its schema up to date.
func Open(ctx context.Context, driver, source string) (Store, error) {
	switch driver {
	case "postgres":
		s, err := NewPostgresStore(ctx, source)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return OpenSQLite(ctx, source)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
