package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/ignition/internal/config"
)

// PlanStore archives finalized plans. A plan is identified by its module id
// and content hash; the same hash is never stored twice for one module.
type PlanStore interface {
	SavePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, moduleID, hash string) (*Plan, error)
	GetLatestPlan(ctx context.Context, moduleID string) (*Plan, error)
	ListPlans(ctx context.Context, filter PlanFilter, pagination PaginationParams) (*PaginatedResult[Plan], error)
	DeletePlan(ctx context.Context, moduleID, hash string) error
}

// Store combines the plan archive with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	PlanStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Plan is an archived plan together with the manifest it was compiled from.
type Plan struct {
	ID             string
	ModuleID       string
	Version        string
	Hash           string
	NamingPolicy   string
	ActionCount    int
	Submodules     []string
	ManifestFormat string
	Manifest       []byte
	ManifestHash   string
	Content        []byte // encoded module.Plan
	CreatedAt      string
}

// PlanFilter contains filter options for listing plans
type PlanFilter struct {
	ModuleID string
	Version  string
	Query    string // substring of the module id
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
