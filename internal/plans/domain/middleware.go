package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/ignition/internal/auth"
)

// Service is the plans API consumed by transports.
type Service interface {
	Compile(ctx context.Context, req CompileRequest) (*Plan, error)
	Publish(ctx context.Context, req CompileRequest) (*PublishResult, error)
	Get(ctx context.Context, moduleID, hash string) (*Plan, error)
	Latest(ctx context.Context, moduleID string) (*Plan, error)
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
	Delete(ctx context.Context, moduleID, hash string) error
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Compile(ctx context.Context, req CompileRequest) (*Plan, error) {
	start := time.Now()
	plan, err := m.next.Compile(ctx, req)
	attrs := []any{
		"format", req.Format,
		"naming", req.Naming,
		"size", len(req.Manifest),
		"duration", time.Since(start),
		"error", err,
	}
	if plan != nil {
		attrs = append(attrs, "module", plan.ModuleID, "hash", plan.Hash, "actions", plan.ActionCount)
	}
	m.logger.Info("Compile", attrs...)
	return plan, err
}

func (m *loggingMiddleware) Publish(ctx context.Context, req CompileRequest) (*PublishResult, error) {
	start := time.Now()
	result, err := m.next.Publish(ctx, req)
	attrs := []any{
		"format", req.Format,
		"size", len(req.Manifest),
		"duration", time.Since(start),
		"error", err,
	}
	if result != nil {
		attrs = append(attrs,
			"module", result.Plan.ModuleID,
			"version", result.Plan.Version,
			"hash", result.Plan.Hash,
			"created", result.Created,
		)
	}
	if key := auth.KeyNameFromContext(ctx); key != "" {
		attrs = append(attrs, "key", key)
	}
	m.logger.Info("Publish", attrs...)
	return result, err
}

func (m *loggingMiddleware) Get(ctx context.Context, moduleID, hash string) (*Plan, error) {
	start := time.Now()
	plan, err := m.next.Get(ctx, moduleID, hash)
	m.logger.Debug("Get",
		"module", moduleID,
		"hash", hash,
		"duration", time.Since(start),
		"error", err,
	)
	return plan, err
}

func (m *loggingMiddleware) Latest(ctx context.Context, moduleID string) (*Plan, error) {
	start := time.Now()
	plan, err := m.next.Latest(ctx, moduleID)
	m.logger.Debug("Latest",
		"module", moduleID,
		"duration", time.Since(start),
		"error", err,
	)
	return plan, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.List(ctx, filter, pagination)
	m.logger.Debug("List",
		"filter", filter,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) Delete(ctx context.Context, moduleID, hash string) error {
	start := time.Now()
	err := m.next.Delete(ctx, moduleID, hash)
	m.logger.Info("Delete",
		"module", moduleID,
		"hash", hash,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}
