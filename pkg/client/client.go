// Package client provides a Go client for the ignition plans API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pendergraft/ignition/pkg/module"
)

// Client is an ignition API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	apiKey     string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// WithAPIKey sends key with every request. Servers with API keys
// configured require one for publish and delete.
func WithAPIKey(key string) Option {
	return func(client *Client) {
		client.apiKey = key
	}
}

// New creates a new ignition client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "ignition-go-client",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CompileRequest is the request for compiling or publishing a manifest
type CompileRequest struct {
	Manifest string `json:"manifest"`
	Format   string `json:"format,omitempty"`
	Naming   string `json:"naming,omitempty"`
}

// Plan is a compiled or archived plan
type Plan struct {
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

// Decode parses the embedded plan and verifies it against Hash.
func (p *Plan) Decode() (*module.Plan, error) {
	if len(p.Plan) == 0 {
		return nil, errors.New("response carries no plan content")
	}
	decoded, err := module.DecodePlan(p.Plan)
	if err != nil {
		return nil, err
	}
	if decoded.Hash != p.Hash {
		return nil, fmt.Errorf("%w: response says %s, content says %s", module.ErrPlanHashMismatch, p.Hash, decoded.Hash)
	}
	return decoded, nil
}

// PublishResult is the response for publishing a manifest
type PublishResult struct {
	Created bool `json:"created"`
	Plan    Plan `json:"plan"`
}

// ListOptions filters ListPlans
type ListOptions struct {
	Module  string
	Version string
	Query   string
	Limit   int
	Cursor  string
}

// ListPlansResponse is the response for listing plans
type ListPlansResponse struct {
	Data       []Plan     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Compile builds a manifest into a plan without archiving it
func (c *Client) Compile(ctx context.Context, req CompileRequest) (*Plan, error) {
	var resp Plan
	if err := c.send(ctx, http.MethodPost, "/api/v1/plans/compile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Publish compiles a manifest and archives the plan. Republishing an
// identical plan returns the stored record with Created false.
func (c *Client) Publish(ctx context.Context, req CompileRequest) (*PublishResult, error) {
	var resp PublishResult
	if err := c.send(ctx, http.MethodPost, "/api/v1/plans", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPlans lists archived plans
func (c *Client) ListPlans(ctx context.Context, opts ListOptions) (*ListPlansResponse, error) {
	q := url.Values{}
	if opts.Module != "" {
		q.Set("module", opts.Module)
	}
	if opts.Version != "" {
		q.Set("version", opts.Version)
	}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	path := "/api/v1/plans"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListPlansResponse
	if err := c.send(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPlan gets an archived plan by module id and hash
func (c *Client) GetPlan(ctx context.Context, moduleID, hash string) (*Plan, error) {
	var resp Plan
	path := fmt.Sprintf("/api/v1/plans/%s/%s", url.PathEscape(moduleID), url.PathEscape(hash))
	if err := c.send(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLatestPlan gets the plan with the highest version for a module
func (c *Client) GetLatestPlan(ctx context.Context, moduleID string) (*Plan, error) {
	var resp Plan
	if err := c.send(ctx, http.MethodGet, "/api/v1/plans/"+url.PathEscape(moduleID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeletePlan deletes an archived plan
func (c *Client) DeletePlan(ctx context.Context, moduleID, hash string) error {
	path := fmt.Sprintf("/api/v1/plans/%s/%s", url.PathEscape(moduleID), url.PathEscape(hash))
	return c.send(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message:    resp.Status,
		}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
