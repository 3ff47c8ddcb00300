// Package vmapi is a thin client for the sandbox control plane: an HTTP API
// that creates and deletes sandboxes and executes shell commands on them.
//
// The client performs no retries. Several provisioning commands are not
// idempotent (killing and relaunching a process, for example), so retry
// policy always belongs to the caller.
package vmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 60 * time.Second

// ExecResult is the outcome of running a shell command on a sandbox.
// Output is combined stdout/stderr as returned by the control plane; callers
// parse it with their own conventions (sentinel strings, exit codes).
type ExecResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

// Sandbox describes a sandbox allocated by the control plane.
type Sandbox struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Endpoint  string `json:"endpoint"`
	State     string `json:"state"`
}

// Project is a control-plane project that sandboxes are created under.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the sandbox control plane.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a control plane client.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("vm api base URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("vm api key is required")
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunCommand executes a POSIX shell command line on the sandbox and returns
// its combined output and exit code. A non-zero exit code is not an error at
// this layer; only transport and API failures are.
func (c *Client) RunCommand(ctx context.Context, sandboxID, command string) (ExecResult, error) {
	var result ExecResult
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/v1/sandboxes/%s/exec", url.PathEscape(sandboxID)),
		map[string]string{"command": command}, &result)
	return result, err
}

// CreateSandbox allocates a new sandbox under the given project.
func (c *Client) CreateSandbox(ctx context.Context, projectID string) (Sandbox, error) {
	var sb Sandbox
	err := c.call(ctx, http.MethodPost, "/v1/sandboxes",
		map[string]string{"projectId": projectID}, &sb)
	return sb, err
}

// ListProjects returns the projects visible to the API key.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := c.call(ctx, http.MethodGet, "/v1/projects", nil, &projects)
	return projects, err
}

// DeleteSandbox removes a sandbox. Deleting a sandbox that no longer exists
// returns a ControlPlaneError with status 404; callers that treat deletion as
// best-effort are expected to swallow it.
func (c *Client) DeleteSandbox(ctx context.Context, sandboxID string) error {
	return c.call(ctx, http.MethodDelete, "/v1/sandboxes/"+url.PathEscape(sandboxID), nil, nil)
}

// call makes an HTTP request to the control plane and decodes the response.
func (c *Client) call(ctx context.Context, method, path string, body any, result any) error {
	op := method + " " + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &TransientError{Op: op, Cause: err}
		}
		return &ControlPlaneError{Op: op, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: string(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &ControlPlaneError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &ControlPlaneError{Op: op, StatusCode: resp.StatusCode,
				Body: fmt.Sprintf("undecodable response: %v", err)}
		}
	}
	return nil
}

// isTimeout reports whether err is a timeout or cancellation-by-deadline,
// which callers may safely retry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
