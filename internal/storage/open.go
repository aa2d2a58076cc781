package storage

import (
	"context"
	"errors"
	"strings"

	logx "powerwatch/pkg/logx"
)

// Store is the persistence API used by the dispatcher, the orchestrator and
// the CLI.
type Store interface {
	ListSubscriptions(ctx context.Context, locationID string) ([]Subscription, error)
	AddSubscription(ctx context.Context, sub Subscription) error
	// RemoveSubscription returns ErrNotFound when nothing was removed.
	RemoveSubscription(ctx context.Context, locationID string, chatID int64) error

	LoadStates(ctx context.Context) ([]LocationState, error)
	SaveState(ctx context.Context, st LocationState) error

	Close() error
}

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
