// Package sdk is a Go client for the unipanel HTTP API. Configuration
// and option reads go through a short-lived cache so render-heavy callers
// do not hammer the backend; mutations report the backend's success
// envelope and invalidate the affected cache entries.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"unipanel-backend/internal/cache"
)

const (
	defaultTimeout = 30 * time.Second

	configFresh  = 5 * time.Minute
	configRetain = 10 * time.Minute
)

// Client talks to one unipanel backend. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string

	configs *cache.Cache[configKey, *EntityConfig]
	options *cache.Cache[configKey, *OptionsResult]
}

type configKey struct {
	ProjectID    string
	DefinitionID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token up front.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.configs = cache.New(configFresh, configRetain, c.fetchConfig)
	c.options = cache.New(configFresh, configRetain, c.fetchOptions)
	return c
}

// --- response shapes ---

// EntityConfig is the merged definition + fields + UI config document.
type EntityConfig struct {
	EntityDefinition map[string]any   `json:"entityDefinition"`
	Fields           []map[string]any `json:"fields"`
	UIConfig         map[string]any   `json:"uiConfig"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// InstancePage is one page of a list read.
type InstancePage struct {
	Data       []map[string]any `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

type OptionItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type OptionsResult struct {
	Options    []OptionItem `json:"options"`
	TitleField string       `json:"titleField"`
}

// APIError carries the backend's error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field,omitempty"`
		Rule    string `json:"rule,omitempty"`
		Message string `json:"message"`
	} `json:"details,omitempty"`
	HTTPStatus int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MutationResult is the success envelope every mutation returns. Err is
// set when Success is false; transport failures surface as a plain error
// from the method instead.
type MutationResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Err     *APIError      `json:"error,omitempty"`
}

// ListQuery narrows a list read.
type ListQuery struct {
	Page    int
	Limit   int
	Search  string
	Sort    string
	Filters map[string]string // key is "field.op", e.g. "status.eq"
}

// --- auth ---

// SignIn exchanges credentials for a token pair and remembers the access
// token for subsequent calls.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	var out struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-in",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = out.Data.AccessToken
	c.mu.Unlock()
	return nil
}

// SignOut revokes the refresh token and forgets the access token.
func (c *Client) SignOut(ctx context.Context, refreshToken string) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/sign-out",
		map[string]string{"refresh_token": refreshToken}, nil)

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.configs.Clear()
	c.options.Clear()
	return err
}

// --- reads ---

// GetEntityDefinitionWithUIConfig returns the resolved configuration for
// a definition. Served from cache within the freshness window.
func (c *Client) GetEntityDefinitionWithUIConfig(ctx context.Context, projectID, definitionID string) (*EntityConfig, error) {
	return c.configs.Get(ctx, configKey{ProjectID: projectID, DefinitionID: definitionID})
}

// GetOptions returns the selectable instances of a definition as
// {id, title} pairs. Served from cache within the freshness window.
func (c *Client) GetOptions(ctx context.Context, projectID, definitionID string) (*OptionsResult, error) {
	return c.options.Get(ctx, configKey{ProjectID: projectID, DefinitionID: definitionID})
}

// GetInstances returns one page of instances. Not cached: list reads are
// expected to reflect writes immediately.
func (c *Client) GetInstances(ctx context.Context, projectID, definitionID string, q ListQuery) (*InstancePage, error) {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort)
	}
	for key, val := range q.Filters {
		values.Set("filter["+key+"]", val)
	}

	path := c.entityPath(projectID, definitionID)
	if enc := values.Encode(); enc != "" {
		path += "?" + enc
	}

	var page InstancePage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []map[string]any{}
	}
	return &page, nil
}

// GetInstance returns a single instance by id.
func (c *Client) GetInstance(ctx context.Context, projectID, definitionID, instanceID string) (map[string]any, error) {
	var out struct {
		Data map[string]any `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, c.entityPath(projectID, definitionID)+"/"+instanceID, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// --- mutations ---

func (c *Client) CreateInstance(ctx context.Context, projectID, definitionID string, body map[string]any) (*MutationResult, error) {
	return c.mutate(ctx, http.MethodPost, c.entityPath(projectID, definitionID), projectID, definitionID, body)
}

func (c *Client) UpdateInstance(ctx context.Context, projectID, definitionID, instanceID string, body map[string]any) (*MutationResult, error) {
	return c.mutate(ctx, http.MethodPut, c.entityPath(projectID, definitionID)+"/"+instanceID, projectID, definitionID, body)
}

func (c *Client) DeleteInstance(ctx context.Context, projectID, definitionID, instanceID string) (*MutationResult, error) {
	return c.mutate(ctx, http.MethodDelete, c.entityPath(projectID, definitionID)+"/"+instanceID, projectID, definitionID, nil)
}

func (c *Client) mutate(ctx context.Context, method, path, projectID, definitionID string, body any) (*MutationResult, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var result MutationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
	}
	if result.Err != nil {
		result.Err.HTTPStatus = resp.StatusCode
	}

	// A write changes what option lists and shaped reads would return.
	key := configKey{ProjectID: projectID, DefinitionID: definitionID}
	c.options.Invalidate(key)
	c.configs.Invalidate(key)
	return &result, nil
}

// --- plumbing ---

func (c *Client) entityPath(projectID, definitionID string) string {
	return "/api/projects/" + projectID + "/entities/" + definitionID
}

func (c *Client) fetchConfig(ctx context.Context, key configKey) (*EntityConfig, error) {
	var out struct {
		Data EntityConfig `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, c.entityPath(key.ProjectID, key.DefinitionID)+"/config", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) fetchOptions(ctx context.Context, key configKey) (*OptionsResult, error) {
	var out OptionsResult
	err := c.do(ctx, http.MethodGet, c.entityPath(key.ProjectID, key.DefinitionID)+"/options", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do runs a request and decodes the 2xx body into out. Non-2xx bodies are
// decoded into an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wrapped struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error != nil {
			wrapped.Error.HTTPStatus = resp.StatusCode
			return wrapped.Error
		}
		return &APIError{
			Code:       "HTTP_ERROR",
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
