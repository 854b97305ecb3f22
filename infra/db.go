package infra

import (
	"context"
	"fmt"

	"github.com/warp/campaign-engine/campaign"
	"github.com/warp/campaign-engine/campaign/store"
	"github.com/warp/campaign-engine/store/sqlstore"
)

// DriverMemory selects the in-memory store. Data is lost on exit.
const DriverMemory = "memory"

// Store is everything the server needs from persistence.
type Store interface {
	campaign.Store
	campaign.RunStore
	Reset(ctx context.Context) error
}

// OpenStore opens the store for driver and returns it with its closer.
func OpenStore(driver, dsn string) (Store, func() error, error) {
	switch driver {
	case DriverMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		s, err := sqlstore.Open(driver, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s store: %w", driver, err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
