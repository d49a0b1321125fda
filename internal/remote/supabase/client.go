// Package supabase implements the remote task store against the
// Supabase PostgREST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/afflo/tasksync/internal/model"
)

const tasksPath = "/rest/v1/tasks"

// Client is a thin HTTP client for the tasks table exposed through
// PostgREST. It handles API-key authentication, JSON marshaling, and
// upsert/idempotent-delete semantics.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Supabase client. The baseURL is the project
// root (e.g., https://xyz.supabase.co); apiKey is sent both as the
// apikey header and as a Bearer token.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Select returns all tasks for the user ordered ascending by the order
// column.
func (c *Client) Select(ctx context.Context, userID string) ([]model.Task, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Set("order", `"order".asc`)

	body, err := c.do(ctx, http.MethodGet, tasksPath+"?"+query.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}

	var records []taskRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding tasks response: %w", err)
	}

	tasks := make([]model.Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, r.toModel())
	}
	return tasks, nil
}

// Upsert inserts or overwrites a task keyed by id.
func (c *Client) Upsert(ctx context.Context, task model.Task) error {
	headers := map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	}
	_, err := c.do(ctx, http.MethodPost, tasksPath, []upsertRecord{upsertFromModel(task)}, headers)
	return err
}

// Delete removes a task by id. PostgREST returns success even when no
// row matches, so deleting an already-absent task is a no-op.
func (c *Client) Delete(ctx context.Context, taskID string) error {
	query := url.Values{}
	query.Set("id", "eq."+taskID)

	headers := map[string]string{
		"Prefer": "return=minimal",
	}
	_, err := c.do(ctx, http.MethodDelete, tasksPath+"?"+query.Encode(), nil, headers)
	return err
}

// do builds the request, attaches authentication, and returns the raw
// response body for 2xx responses.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	headers map[string]string,
) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf(
			"authentication failed (401): check the API key for %s", c.baseURL,
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pgErr errorResponse
		if json.Unmarshal(respBody, &pgErr) == nil && pgErr.Message != "" {
			return nil, fmt.Errorf(
				"supabase error (%d) on %s %s: %s",
				resp.StatusCode, method, path, pgErr.Message,
			)
		}
		return nil, fmt.Errorf(
			"unexpected status %d on %s %s: %s",
			resp.StatusCode, method, path, string(respBody),
		)
	}

	return respBody, nil
}

// errorResponse is the PostgREST error body.
type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
}
