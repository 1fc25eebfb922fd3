package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pendergraft/ignition/pkg/module"
)

func encodedPlan(t *testing.T) (string, json.RawMessage) {
	t.Helper()
	m, err := module.Build("Token", func(m *module.Context) (module.Results, error) {
		token := m.Contract("Token", []any{"Coin", 18})
		return module.Results{"token": token}, nil
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	p, err := m.Plan()
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	content, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return p.Hash, content
}

func TestClient_Compile(t *testing.T) {
	hash, content := encodedPlan(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans/compile" {
			t.Errorf("Expected path /api/v1/plans/compile, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}

		var req CompileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Manifest != "modules: []" || req.Naming != "subject" {
			t.Errorf("unexpected request %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"module":      "Token",
			"hash":        hash,
			"actionCount": 1,
			"plan":        content,
		})
	}))
	defer server.Close()

	client := New(server.URL)
	plan, err := client.Compile(context.Background(), CompileRequest{Manifest: "modules: []", Naming: "subject"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if plan.Module != "Token" || plan.Hash != hash {
		t.Errorf("Compile() = %+v", plan)
	}

	decoded, err := plan.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded.Order) != 1 || decoded.Order[0] != "Token#deploy/0" {
		t.Errorf("Decode().Order = %v", decoded.Order)
	}
}

func TestPlan_DecodeHashMismatch(t *testing.T) {
	_, content := encodedPlan(t)

	p := &Plan{Hash: "sha256:ffff", Plan: content}
	if _, err := p.Decode(); !errors.Is(err, module.ErrPlanHashMismatch) {
		t.Errorf("Decode() error = %v, want hash mismatch", err)
	}

	empty := &Plan{Hash: "sha256:00"}
	if _, err := empty.Decode(); err == nil {
		t.Error("Decode() without content should fail")
	}
}

func TestClient_Publish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans" {
			t.Errorf("Expected path /api/v1/plans, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if got := r.Header.Get("X-API-Key"); got != "ign_key_test" {
			t.Errorf("Expected X-API-Key ign_key_test, got %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"created": true,
			"plan":    map[string]any{"id": "abc", "module": "Token", "hash": "sha256:01"},
		})
	}))
	defer server.Close()

	result, err := New(server.URL, WithAPIKey("ign_key_test")).Publish(context.Background(), CompileRequest{Manifest: "x"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !result.Created || result.Plan.ID != "abc" {
		t.Errorf("Publish() = %+v", result)
	}
}

func TestClient_ListPlans(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/plans" {
			t.Errorf("Expected path /api/v1/plans, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("module") != "Token" || q.Get("limit") != "5" || q.Get("cursor") != "Token/sha256:01" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"module": "Token", "hash": "sha256:02"},
			},
			"pagination": map[string]any{
				"limit":   5,
				"hasMore": false,
			},
		})
	}))
	defer server.Close()

	resp, err := New(server.URL).ListPlans(context.Background(), ListOptions{Module: "Token", Limit: 5, Cursor: "Token/sha256:01"})
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Hash != "sha256:02" {
		t.Errorf("ListPlans() = %+v", resp.Data)
	}
}

func TestClient_GetAndDelete(t *testing.T) {
	const hash = "sha256:0123"
	var deleted bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/plans/Token/"+hash:
			json.NewEncoder(w).Encode(map[string]any{"module": "Token", "hash": hash})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/plans/Token":
			json.NewEncoder(w).Encode(map[string]any{"module": "Token", "hash": hash, "version": "2.0.0"})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/plans/Token/"+hash:
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	client := New(server.URL)
	ctx := context.Background()

	plan, err := client.GetPlan(ctx, "Token", hash)
	if err != nil || plan.Hash != hash {
		t.Fatalf("GetPlan() = %+v, %v", plan, err)
	}
	latest, err := client.GetLatestPlan(ctx, "Token")
	if err != nil || latest.Version != "2.0.0" {
		t.Fatalf("GetLatestPlan() = %+v, %v", latest, err)
	}
	if err := client.DeletePlan(ctx, "Token", hash); err != nil {
		t.Fatalf("DeletePlan() error = %v", err)
	}
	if !deleted {
		t.Error("DeletePlan() did not reach the server")
	}
}

func TestClient_ErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "DEPENDENCY_CYCLE",
				"message": "dependency cycle: a -> b -> a",
				"details": map[string]any{"path": []string{"a", "b", "a"}},
			},
		})
	}))
	defer server.Close()

	_, err := New(server.URL).Compile(context.Background(), CompileRequest{Manifest: "x"})
	if err == nil {
		t.Fatal("Expected error for 422 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.Code != "DEPENDENCY_CYCLE" || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if path, ok := apiErr.Details["path"].([]any); !ok || len(path) != 3 {
		t.Errorf("Details[path] = %v", apiErr.Details["path"])
	}
	if IsNotFound(err) {
		t.Error("IsNotFound() = true for 422")
	}
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL).GetLatestPlan(context.Background(), "Token")
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound(%v) = false", err)
	}
}
