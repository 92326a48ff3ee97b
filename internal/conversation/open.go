package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/huddle/internal/config"
)

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory, "":
		s = NewMemory()
	case config.DriverSQLite:
		s, err = OpenSQLite(cfg.DSN)
	case config.DriverRedis:
		s, err = OpenRedis(ctx, cfg.DSN, cfg.TTL)
	case config.DriverPostgres:
		s, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	slog.Info("conversation store ready", slog.String("driver", cfg.Driver))
	return s, nil
}
