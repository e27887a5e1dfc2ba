// Package taskclient is the typed HTTP client workers use to call the task
// API with a service credential.
package taskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/apperr"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

const requestTimeout = 15 * time.Second

// Client calls the task API on behalf of a user, authenticating with a
// short-lived service token plus the acting-user header.
type Client struct {
	baseURL string
	service string
	tokens  *auth.TokenManager
	http    *http.Client
}

// NewClient creates a task API client. service names the calling worker in
// minted tokens.
func NewClient(baseURL, service string, tokens *auth.TokenManager) *Client {
	return &Client{
		baseURL: baseURL,
		service: service,
		tokens:  tokens,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// GetTask fetches a task owned by actingUserID.
func (c *Client) GetTask(ctx context.Context, actingUserID, taskID string) (*v1.Task, error) {
	var task v1.Task
	err := c.do(ctx, actingUserID, http.MethodGet, "/api/v1/tasks/"+taskID, nil, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a task owned by actingUserID.
func (c *Client) CreateTask(ctx context.Context, actingUserID string, req *v1.CreateTaskRequest) (*v1.Task, error) {
	var task v1.Task
	err := c.do(ctx, actingUserID, http.MethodPost, "/api/v1/tasks", req, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) do(ctx context.Context, actingUserID, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	// Service tokens are short-lived; mint one per request.
	token, err := c.tokens.MintService(c.service)
	if err != nil {
		return fmt.Errorf("failed to mint service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(auth.ActingUserHeader, actingUserID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "task API unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.Transient, "failed to decode task API response", err)
		}
		return nil
	}

	message := readError(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFoundf("task API: %s", message)
	case resp.StatusCode == http.StatusBadRequest:
		return apperr.Permanentf("task API rejected request: %s", message)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Unauthorizedf("task API rejected credentials")
	case resp.StatusCode >= 500:
		return apperr.Transientf("task API error (%d): %s", resp.StatusCode, message)
	default:
		return apperr.Permanentf("task API error (%d): %s", resp.StatusCode, message)
	}
}

func readError(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Error == "" {
		return "unknown error"
	}
	return payload.Error
}
