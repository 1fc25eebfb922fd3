// Package domain contains the business logic for compiling and archiving
// deployment plans.
package domain

import (
	"github.com/pendergraft/ignition/pkg/module"
)

// CompileRequest carries a manifest to build.
type CompileRequest struct {
	Manifest []byte
	// Format is yaml, toml or json; empty means yaml
	Format string
	// Naming is the naming policy for unnamed actions; empty uses the
	// service default
	Naming string
}

// Plan is a built plan together with its archive metadata.
type Plan struct {
	ID             string
	ModuleID       string
	Version        string
	Hash           string
	NamingPolicy   string
	ActionCount    int
	Submodules     []string
	ManifestFormat string
	ManifestHash   string
	CreatedAt      string

	// Plan and Content are set by Compile, Get and Latest, not by List.
	Plan    *module.Plan
	Content []byte
}

// PublishResult is the outcome of Publish. Created is false when an
// identical plan was already archived.
type PublishResult struct {
	Plan    *Plan
	Created bool
}

// ListFilter contains filter options for listing plans.
type ListFilter struct {
	ModuleID string
	Version  string
	Query    string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Plans      []Plan
	HasMore    bool
	NextCursor string
}
