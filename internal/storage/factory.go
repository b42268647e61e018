package storage

import (
	"context"
	"fmt"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/config"
)

// NewEventStore selects the backend from config: "postgres" for the durable
// store, "memory" for the single-process fallback.
func NewEventStore(ctx context.Context, cfg *config.Config, logger internal.Logger) (EventStore, error) {
	switch cfg.StorageBackend {
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN, logger)
	case "memory":
		return NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}
