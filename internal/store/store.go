// Package store persists the run ledger and the lookup cache.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheet-enricher/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source string          `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs, cycles, and cached
// lookups.
type Store interface {
	// Runs
	BeginRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Cycles
	RecordCycle(ctx context.Context, rec *model.CycleRecord) error
	ListCycles(ctx context.Context, runID string) ([]model.CycleRecord, error)

	// Lookup cache
	GetCachedLookup(ctx context.Context, key string) ([]byte, error)
	SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredLookups(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config selects a backend.
type Config struct {
	Driver string     `mapstructure:"driver"`
	Path   string     `mapstructure:"path"`
	DSN    string     `mapstructure:"dsn"`
	Pool   PoolConfig `mapstructure:"pool"`
}

// Open connects to the configured backend and migrates it. DriverNone
// returns a nil Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case DriverNone:
		return nil, nil
	case DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "enricher.db"
		}
		s, err = NewSQLite(path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, eris.New("store: postgres dsn is required")
		}
		s, err = NewPostgres(ctx, cfg.DSN, &cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
