// Package transport provides HTTP request/response types for the plans domain.
package transport

import (
	"encoding/json"

	"github.com/pendergraft/ignition/internal/plans/domain"
)

// CompileRequest is the JSON body accepted by compile and publish.
type CompileRequest struct {
	Manifest string `json:"manifest"`
	Format   string `json:"format,omitempty"`
	Naming   string `json:"naming,omitempty"`
}

// ToDomain converts CompileRequest to domain.CompileRequest.
func (r CompileRequest) ToDomain() domain.CompileRequest {
	return domain.CompileRequest{
		Manifest: []byte(r.Manifest),
		Format:   r.Format,
		Naming:   r.Naming,
	}
}

// PlanResponse describes an archived or freshly compiled plan.
type PlanResponse struct {
	ID             string          `json:"id,omitempty"`
	Module         string          `json:"module"`
	Version        string          `json:"version,omitempty"`
	Hash           string          `json:"hash"`
	NamingPolicy   string          `json:"namingPolicy"`
	ActionCount    int             `json:"actionCount"`
	Submodules     []string        `json:"submodules"`
	ManifestFormat string          `json:"manifestFormat,omitempty"`
	ManifestHash   string          `json:"manifestHash,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	Plan           json.RawMessage `json:"plan,omitempty"`
}

// PublishResponse is returned by publish.
type PublishResponse struct {
	Created bool         `json:"created"`
	Plan    PlanResponse `json:"plan"`
}

// ListResponse is a page of plans.
type ListResponse struct {
	Data       []PlanResponse `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// Pagination describes how to fetch the next page.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// FromDomain converts a domain plan.
func FromDomain(p *domain.Plan) PlanResponse {
	subs := p.Submodules
	if subs == nil {
		subs = []string{}
	}
	resp := PlanResponse{
		ID:             p.ID,
		Module:         p.ModuleID,
		Version:        p.Version,
		Hash:           p.Hash,
		NamingPolicy:   p.NamingPolicy,
		ActionCount:    p.ActionCount,
		Submodules:     subs,
		ManifestFormat: p.ManifestFormat,
		ManifestHash:   p.ManifestHash,
		CreatedAt:      p.CreatedAt,
	}
	if len(p.Content) > 0 {
		resp.Plan = json.RawMessage(p.Content)
	}
	return resp
}
