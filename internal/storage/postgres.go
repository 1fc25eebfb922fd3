package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	// content is TEXT, not JSONB: JSONB reorders keys and the plan hash is
	// computed over the exact bytes.
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		seq BIGSERIAL,
		id UUID PRIMARY KEY,
		module_id TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL,
		naming_policy TEXT NOT NULL DEFAULT '',
		action_count INTEGER NOT NULL DEFAULT 0,
		submodules JSONB NOT NULL DEFAULT '[]',
		manifest_format TEXT NOT NULL DEFAULT '',
		manifest BYTEA,
		manifest_hash TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(module_id, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_plans_module ON plans(module_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_plans_manifest_hash ON plans(manifest_hash);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

const postgresPlanColumns = `id, module_id, version, hash, naming_policy, action_count, submodules, manifest_format, manifest, manifest_hash, content, created_at`

// SavePlan stores a plan. It fails with ErrPlanExists when the module
// already has a plan with the same hash.
func (s *PostgresStore) SavePlan(ctx context.Context, p *Plan) error {
	if err := prepare(p); err != nil {
		return err
	}
	subs, err := marshalStrings(p.Submodules)
	if err != nil {
		return fmt.Errorf("encoding submodules: %w", err)
	}

	query := `
		INSERT INTO plans (` + postgresPlanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12)
		ON CONFLICT (module_id, hash) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.ModuleID, p.Version, p.Hash, p.NamingPolicy, p.ActionCount, subs,
		p.ManifestFormat, p.Manifest, p.ManifestHash, string(p.Content), p.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPlanExists
	}
	return nil
}

// GetPlan retrieves a plan by module id and hash
func (s *PostgresStore) GetPlan(ctx context.Context, moduleID, hash string) (*Plan, error) {
	query := `SELECT ` + postgresPlanColumns + ` FROM plans WHERE module_id = $1 AND hash = $2`
	var p Plan
	var subs, content string
	err := s.db.QueryRowContext(ctx, query, moduleID, hash).Scan(
		&p.ID, &p.ModuleID, &p.Version, &p.Hash, &p.NamingPolicy, &p.ActionCount, &subs,
		&p.ManifestFormat, &p.Manifest, &p.ManifestHash, &content, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Submodules = unmarshalStrings(subs)
	p.Content = []byte(content)
	return &p, nil
}

// GetLatestPlan returns the plan with the highest version, most recent first
// among equal versions.
func (s *PostgresStore) GetLatestPlan(ctx context.Context, moduleID string) (*Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, version FROM plans WHERE module_id = $1 ORDER BY created_at DESC, seq DESC`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []planRef
	for rows.Next() {
		var r planRef
		if err := rows.Scan(&r.Hash, &r.Version); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	latest, ok := pickLatest(refs)
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetPlan(ctx, moduleID, latest.Hash)
}

// ListPlans lists plans ordered by module id and hash with cursor-based pagination.
// Manifest and content are not loaded.
func (s *PostgresStore) ListPlans(ctx context.Context, filter PlanFilter, pagination PaginationParams) (*PaginatedResult[Plan], error) {
	limit := pageLimit(pagination)

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ModuleID != "" {
		where = append(where, "module_id = "+arg(filter.ModuleID))
	}
	if filter.Version != "" {
		where = append(where, "version = "+arg(filter.Version))
	}
	if filter.Query != "" {
		where = append(where, "module_id ILIKE "+arg("%"+filter.Query+"%"))
	}
	if pagination.Cursor != "" {
		moduleID, hash, err := decodeCursor(pagination.Cursor)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("(module_id, hash) > (%s, %s)", arg(moduleID), arg(hash)))
	}

	query := `SELECT id, module_id, version, hash, naming_policy, action_count, submodules, manifest_format, manifest_hash, created_at FROM plans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY module_id, hash LIMIT " + arg(limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		var subs string
		if err := rows.Scan(&p.ID, &p.ModuleID, &p.Version, &p.Hash, &p.NamingPolicy, &p.ActionCount, &subs, &p.ManifestFormat, &p.ManifestHash, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Submodules = unmarshalStrings(subs)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &PaginatedResult[Plan]{Data: plans}
	if len(plans) > limit {
		result.Data = plans[:limit]
		result.HasMore = true
		result.NextCursor = encodeCursor(result.Data[limit-1])
	}
	return result, nil
}

// DeletePlan deletes a plan
func (s *PostgresStore) DeletePlan(ctx context.Context, moduleID, hash string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM plans WHERE module_id = $1 AND hash = $2", moduleID, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
