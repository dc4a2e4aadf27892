package server

import (
	"context"
	"fmt"

	"github.com/victornm/typerace/internal/store"
	"github.com/victornm/typerace/internal/store/memory"
	"github.com/victornm/typerace/internal/store/postgres"
	"github.com/victornm/typerace/internal/store/sqlite"
)

// OpenStore connects the result store selected by c.Driver and creates its table.
func OpenStore(ctx context.Context, c StoreConfig) (store.ResultStore, error) {
	switch c.Driver {
	case "", "memory":
		return memory.New(), nil

	case "sqlite":
		st, err := sqlite.Open(ctx, c.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return st, nil

	case "postgres":
		st, err := postgres.Connect(ctx, c.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown driver %q", c.Driver)
	}
}
