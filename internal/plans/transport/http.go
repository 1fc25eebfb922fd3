// Package transport provides HTTP handlers for the plans domain.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/ignition/internal/manifest"
	"github.com/pendergraft/ignition/internal/plans/domain"
	"github.com/pendergraft/ignition/pkg/module"
)

// Handler handles HTTP requests for plans.
type Handler struct {
	svc          domain.Service
	maxBodyBytes int64
}

// NewHandler creates a new plans HTTP handler. Request bodies larger than
// maxBodyBytes are rejected; 0 means 1MB.
func NewHandler(svc domain.Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes registers all plan routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	h.RegisterReadRoutes(r)
	h.RegisterWriteRoutes(r)
}

// RegisterReadRoutes registers routes that never change the archive.
// Compile builds a plan without storing it, so it counts as a read.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/compile", h.handleCompile)
	r.Get("/{module}", h.handleLatest)
	r.Get("/{module}/{hash}", h.handleGet)
}

// RegisterWriteRoutes registers routes that modify the archive.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handlePublish)
	r.Delete("/{module}/{hash}", h.handleDelete)
}

func (h *Handler) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCompileRequest(w, r)
	if !ok {
		return
	}

	plan, err := h.svc.Compile(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(plan))
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCompileRequest(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, PublishResponse{Created: result.Created, Plan: FromDomain(result.Plan)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		ModuleID: q.Get("module"),
		Version:  q.Get("version"),
		Query:    q.Get("q"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	data := make([]PlanResponse, len(result.Plans))
	for i := range result.Plans {
		data[i] = FromDomain(&result.Plans[i])
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Latest(r.Context(), chi.URLParam(r, "module"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(plan))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Get(r.Context(), chi.URLParam(r, "module"), chi.URLParam(r, "hash"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDomain(plan))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "module"), chi.URLParam(r, "hash")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeCompileRequest accepts either a JSON envelope or the raw manifest,
// with format and naming passed as query parameters. Raw bodies sent as
// application/toml default to toml.
func (h *Handler) decodeCompileRequest(w http.ResponseWriter, r *http.Request) (domain.CompileRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "MANIFEST_TOO_LARGE", "Request body too large")
			return domain.CompileRequest{}, false
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return domain.CompileRequest{}, false
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req CompileRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
			return domain.CompileRequest{}, false
		}
		if req.Manifest == "" {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "manifest is required")
			return domain.CompileRequest{}, false
		}
		return req.ToDomain(), true
	}

	format := r.URL.Query().Get("format")
	if format == "" && mediaType == "application/toml" {
		format = "toml"
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "manifest is required")
		return domain.CompileRequest{}, false
	}
	return domain.CompileRequest{
		Manifest: body,
		Format:   format,
		Naming:   r.URL.Query().Get("naming"),
	}, true
}

// writeServiceError maps service and build errors to HTTP responses.
// Structural problems in the module graph are 422 with details.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		graphErr *module.GraphError
		dupErr   *module.DuplicateActionIDError
		mErr     *manifest.Error
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Plan not found")
	case errors.Is(err, domain.ErrManifestTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "MANIFEST_TOO_LARGE", err.Error())
	case errors.Is(err, domain.ErrInvalidModuleID), errors.Is(err, domain.ErrInvalidHash), errors.Is(err, domain.ErrInvalidNaming),
		errors.Is(err, domain.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "VERSION_CONFLICT", err.Error())
	case errors.As(err, &graphErr):
		details := manifestDetails(err)
		if len(graphErr.Path) > 0 {
			details["path"] = graphErr.Path
		}
		if graphErr.ActionID != "" {
			details["actionId"] = graphErr.ActionID
		}
		if graphErr.MissingID != "" {
			details["missingId"] = graphErr.MissingID
		}
		if graphErr.Reason != "" {
			details["reason"] = graphErr.Reason
		}
		writeErrorDetails(w, http.StatusUnprocessableEntity, graphErrorCode(graphErr), err.Error(), details)
	case errors.As(err, &dupErr):
		details := manifestDetails(err)
		details["actionId"] = dupErr.ID
		details["module"] = dupErr.Module
		writeErrorDetails(w, http.StatusUnprocessableEntity, "DUPLICATE_ACTION_ID", err.Error(), details)
	case errors.As(err, &mErr):
		writeErrorDetails(w, http.StatusBadRequest, "INVALID_MANIFEST", err.Error(), manifestDetails(err))
	case errors.Is(err, domain.ErrInvalidManifest):
		writeError(w, http.StatusBadRequest, "INVALID_MANIFEST", err.Error())
	case errors.Is(err, module.ErrInvalidArgument), errors.Is(err, module.ErrModuleFinalized):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_MODULE", err.Error())
	case errors.Is(err, domain.ErrCorruptPlan):
		writeError(w, http.StatusInternalServerError, "CORRUPT_PLAN", "Archived plan failed its integrity check")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// manifestDetails is the manifest location of err, if it has one.
func manifestDetails(err error) map[string]any {
	details := map[string]any{}
	var mErr *manifest.Error
	if errors.As(err, &mErr) {
		details["module"] = mErr.Module
		if mErr.Action != "" {
			details["action"] = mErr.Action
		}
	}
	return details
}

func graphErrorCode(e *module.GraphError) string {
	switch {
	case errors.Is(e.Kind, module.ErrCycle):
		return "DEPENDENCY_CYCLE"
	case errors.Is(e.Kind, module.ErrDanglingReference):
		return "DANGLING_REFERENCE"
	case errors.Is(e.Kind, module.ErrDuplicateID):
		return "DUPLICATE_ID"
	default:
		return "INVALID_GRAPH"
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorDetails(w, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, status, map[string]any{"error": body})
}
