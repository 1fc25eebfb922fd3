package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL,
		naming_policy TEXT NOT NULL DEFAULT '',
		action_count INTEGER NOT NULL DEFAULT 0,
		submodules TEXT NOT NULL DEFAULT '[]',
		manifest_format TEXT NOT NULL DEFAULT '',
		manifest BLOB,
		manifest_hash TEXT NOT NULL DEFAULT '',
		content BLOB NOT NULL,
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

const sqlitePlanColumns = `id, module_id, version, hash, naming_policy, action_count, submodules, manifest_format, manifest, manifest_hash, content, created_at`

// SavePlan stores a plan. It fails with ErrPlanExists when the module
// already has a plan with the same hash.
func (s *SQLiteStore) SavePlan(ctx context.Context, p *Plan) error {
	if err := prepare(p); err != nil {
		return err
	}
	subs, err := marshalStrings(p.Submodules)
	if err != nil {
		return fmt.Errorf("encoding submodules: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM plans WHERE module_id = ? AND hash = ?", p.ModuleID, p.Hash).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrPlanExists
	}

	query := `INSERT INTO plans (` + sqlitePlanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		p.ID, p.ModuleID, p.Version, p.Hash, p.NamingPolicy, p.ActionCount, subs,
		p.ManifestFormat, p.Manifest, p.ManifestHash, p.Content, p.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPlan retrieves a plan by module id and hash
func (s *SQLiteStore) GetPlan(ctx context.Context, moduleID, hash string) (*Plan, error) {
	query := `SELECT ` + sqlitePlanColumns + ` FROM plans WHERE module_id = ? AND hash = ?`
	p, err := scanSQLitePlan(s.db.QueryRowContext(ctx, query, moduleID, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetLatestPlan returns the plan with the highest version, most recent first
// among equal versions.
func (s *SQLiteStore) GetLatestPlan(ctx context.Context, moduleID string) (*Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, version FROM plans WHERE module_id = ? ORDER BY created_at DESC, rowid DESC`, moduleID)
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
func (s *SQLiteStore) ListPlans(ctx context.Context, filter PlanFilter, pagination PaginationParams) (*PaginatedResult[Plan], error) {
	limit := pageLimit(pagination)

	var where []string
	var args []any
	if filter.ModuleID != "" {
		where = append(where, "module_id = ?")
		args = append(args, filter.ModuleID)
	}
	if filter.Version != "" {
		where = append(where, "version = ?")
		args = append(args, filter.Version)
	}
	if filter.Query != "" {
		where = append(where, "module_id LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}
	if pagination.Cursor != "" {
		moduleID, hash, err := decodeCursor(pagination.Cursor)
		if err != nil {
			return nil, err
		}
		where = append(where, "(module_id > ? OR (module_id = ? AND hash > ?))")
		args = append(args, moduleID, moduleID, hash)
	}

	query := `SELECT id, module_id, version, hash, naming_policy, action_count, submodules, manifest_format, manifest_hash, created_at FROM plans`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY module_id, hash LIMIT ?"
	args = append(args, limit+1)

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
func (s *SQLiteStore) DeletePlan(ctx context.Context, moduleID, hash string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM plans WHERE module_id = ? AND hash = ?", moduleID, hash)
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

func scanSQLitePlan(row *sql.Row) (*Plan, error) {
	var p Plan
	var subs string
	err := row.Scan(
		&p.ID, &p.ModuleID, &p.Version, &p.Hash, &p.NamingPolicy, &p.ActionCount, &subs,
		&p.ManifestFormat, &p.Manifest, &p.ManifestHash, &p.Content, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Submodules = unmarshalStrings(subs)
	return &p, nil
}
