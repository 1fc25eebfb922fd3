package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pendergraft/ignition/internal/manifest"
	"github.com/pendergraft/ignition/internal/observability/metrics"
	"github.com/pendergraft/ignition/internal/storage"
	"github.com/pendergraft/ignition/internal/validation"
	"github.com/pendergraft/ignition/pkg/module"
)

// Common errors returned by the plans service.
var (
	ErrNotFound         = errors.New("plan not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
	ErrManifestTooLarge = errors.New("manifest too large")
	ErrInvalidModuleID  = errors.New("invalid module id")
	ErrInvalidHash      = errors.New("invalid plan hash")
	ErrInvalidNaming    = errors.New("invalid naming policy")
	ErrCorruptPlan      = errors.New("archived plan is corrupt")
	ErrInvalidCursor    = errors.New("invalid cursor")
	// ErrVersionConflict means the plan is archived under another version.
	ErrVersionConflict  = errors.New("plan archived under another version")
)

// PlanStore defines the storage operations needed by the plans domain.
type PlanStore interface {
	SavePlan(ctx context.Context, p *storage.Plan) error
	GetPlan(ctx context.Context, moduleID, hash string) (*storage.Plan, error)
	GetLatestPlan(ctx context.Context, moduleID string) (*storage.Plan, error)
	ListPlans(ctx context.Context, filter storage.PlanFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Plan], error)
	DeletePlan(ctx context.Context, moduleID, hash string) error
}

// Options configures the service.
type Options struct {
	// DefaultNaming is used when a request names no policy
	DefaultNaming string
	// MaxManifestBytes rejects larger manifests; 0 means no limit
	MaxManifestBytes int
	// Logger receives module build logs
	Logger *slog.Logger
}

type service struct {
	plans PlanStore
	opts  Options
}

// NewService creates a new plans service.
func NewService(plans PlanStore, opts Options) *service {
	if opts.DefaultNaming == "" {
		opts.DefaultNaming = "ordinal"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &service{plans: plans, opts: opts}
}

// Compile builds the manifest's main module into a plan without storing it.
func (s *service) Compile(ctx context.Context, req CompileRequest) (*Plan, error) {
	if s.opts.MaxManifestBytes > 0 && len(req.Manifest) > s.opts.MaxManifestBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrManifestTooLarge, len(req.Manifest), s.opts.MaxManifestBytes)
	}
	format, err := manifest.ParseFormat(req.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	namingName := strings.ToLower(req.Naming)
	if namingName == "" {
		namingName = s.opts.DefaultNaming
	}
	naming, err := module.NamingByName(namingName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNaming, err)
	}

	f, err := manifest.Parse(req.Manifest, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	def, err := manifest.Compile(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	start := time.Now()
	m, err := def.Build(module.WithNaming(naming), module.WithLogger(s.opts.Logger))
	if err != nil {
		metrics.ModuleBuild(buildResult(err), time.Since(start), 0)
		var merr *manifest.Error
		if errors.As(err, &merr) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		return nil, err
	}
	metrics.ModuleBuild("ok", time.Since(start), m.Len())

	p, err := m.Plan()
	if err != nil {
		return nil, fmt.Errorf("serializing plan: %w", err)
	}
	content, err := p.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}

	var version string
	if main, ok := f.Module(m.ID()); ok {
		version = validation.NormalizeVersion(main.Version)
	}
	return &Plan{
		ModuleID:       m.ID(),
		Version:        version,
		Hash:           p.Hash,
		NamingPolicy:   namingName,
		ActionCount:    m.Len(),
		Submodules:     p.Submodules,
		ManifestFormat: string(format),
		ManifestHash:   computeHash(req.Manifest),
		Plan:           p,
		Content:        content,
	}, nil
}

// Publish compiles the manifest and archives the plan. Publishing a plan
// that is already archived returns the stored record, unless the manifest
// gives it a different version.
func (s *service) Publish(ctx context.Context, req CompileRequest) (*PublishResult, error) {
	plan, err := s.Compile(ctx, req)
	if err != nil {
		metrics.PlanPublish("invalid")
		return nil, err
	}

	record := &storage.Plan{
		ModuleID:       plan.ModuleID,
		Version:        plan.Version,
		Hash:           plan.Hash,
		NamingPolicy:   plan.NamingPolicy,
		ActionCount:    plan.ActionCount,
		Submodules:     plan.Submodules,
		ManifestFormat: plan.ManifestFormat,
		Manifest:       req.Manifest,
		ManifestHash:   plan.ManifestHash,
		Content:        plan.Content,
	}
	err = s.plans.SavePlan(ctx, record)
	switch {
	case err == nil:
		metrics.PlanPublish("created")
		plan.ID = record.ID
		plan.CreatedAt = record.CreatedAt
		return &PublishResult{Plan: plan, Created: true}, nil
	case errors.Is(err, storage.ErrPlanExists):
		existing, err := s.get(ctx, plan.ModuleID, plan.Hash)
		if err != nil {
			metrics.PlanPublish("error")
			return nil, err
		}
		if existing.Version != plan.Version {
			metrics.PlanPublish("conflict")
			return nil, fmt.Errorf("%w: %s %s is archived as version %q", ErrVersionConflict, plan.ModuleID, plan.Hash, existing.Version)
		}
		metrics.PlanPublish("exists")
		return &PublishResult{Plan: existing, Created: false}, nil
	default:
		metrics.PlanPublish("error")
		return nil, fmt.Errorf("saving plan: %w", err)
	}
}

// Get retrieves an archived plan by module id and hash.
func (s *service) Get(ctx context.Context, moduleID, hash string) (*Plan, error) {
	if err := validation.ValidateModuleID(moduleID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModuleID, err)
	}
	if err := validation.ValidatePlanHash(hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	p, err := s.get(ctx, moduleID, hash)
	metrics.PlanRetrieve(retrieveStatus(err))
	return p, err
}

func (s *service) get(ctx context.Context, moduleID, hash string) (*Plan, error) {
	record, err := s.plans.GetPlan(ctx, moduleID, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting plan: %w", err)
	}
	return fromRecord(record, true)
}

// Latest returns the plan with the highest version for a module, the most
// recent one among equal versions.
func (s *service) Latest(ctx context.Context, moduleID string) (*Plan, error) {
	if err := validation.ValidateModuleID(moduleID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModuleID, err)
	}
	record, err := s.plans.GetLatestPlan(ctx, moduleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.PlanRetrieve("not_found")
			return nil, ErrNotFound
		}
		metrics.PlanRetrieve("error")
		return nil, fmt.Errorf("getting latest plan: %w", err)
	}
	p, err := fromRecord(record, true)
	metrics.PlanRetrieve(retrieveStatus(err))
	return p, err
}

// List lists archived plans without their content.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.plans.ListPlans(ctx, storage.PlanFilter{
		ModuleID: filter.ModuleID,
		Version:  filter.Version,
		Query:    filter.Query,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, pagination.Cursor)
		}
		return nil, fmt.Errorf("listing plans: %w", err)
	}

	plans := make([]Plan, 0, len(result.Data))
	for i := range result.Data {
		p, err := fromRecord(&result.Data[i], false)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return &ListResult{
		Plans:      plans,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	}, nil
}

// Delete removes an archived plan.
func (s *service) Delete(ctx context.Context, moduleID, hash string) error {
	if err := validation.ValidateModuleID(moduleID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModuleID, err)
	}
	if err := validation.ValidatePlanHash(hash); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if err := s.plans.DeletePlan(ctx, moduleID, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.PlanDelete("not_found")
			return ErrNotFound
		}
		metrics.PlanDelete("error")
		return fmt.Errorf("deleting plan: %w", err)
	}
	metrics.PlanDelete("deleted")
	return nil
}

// fromRecord converts a storage row. With content set, the stored plan is
// decoded, which re-checks its hash.
func fromRecord(r *storage.Plan, content bool) (*Plan, error) {
	p := &Plan{
		ID:             r.ID,
		ModuleID:       r.ModuleID,
		Version:        r.Version,
		Hash:           r.Hash,
		NamingPolicy:   r.NamingPolicy,
		ActionCount:    r.ActionCount,
		Submodules:     r.Submodules,
		ManifestFormat: r.ManifestFormat,
		ManifestHash:   r.ManifestHash,
		CreatedAt:      r.CreatedAt,
	}
	if !content {
		return p, nil
	}
	decoded, err := module.DecodePlan(r.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %w", ErrCorruptPlan, r.ModuleID, r.Hash, err)
	}
	if decoded.Hash != r.Hash {
		return nil, fmt.Errorf("%w: %s stored under %s", ErrCorruptPlan, decoded.Hash, r.Hash)
	}
	p.Plan = decoded
	p.Content = r.Content
	return p, nil
}

// buildResult labels a build error for metrics.
func buildResult(err error) string {
	var merr *manifest.Error
	switch {
	case errors.Is(err, module.ErrCycle):
		return "cycle"
	case errors.Is(err, module.ErrDanglingReference):
		return "dangling"
	case errors.Is(err, module.ErrDuplicateActionID), errors.Is(err, module.ErrDuplicateID):
		return "duplicate"
	case errors.As(err, &merr):
		return "manifest"
	case errors.Is(err, module.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}

func retrieveStatus(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
