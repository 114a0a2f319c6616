package repo

import (
	"context"
	"fmt"
	"log/slog"
)

// Store is the full relational backend used by the relay.
type Store interface {
	ParticipantRepository
	ConversationRepository
	MessageRepository

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the store selected by driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string, maxConns int32, logger *slog.Logger) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgresStore(ctx, dsn, maxConns, logger)
	case "sqlite":
		return NewSQLiteStore(dsn, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
