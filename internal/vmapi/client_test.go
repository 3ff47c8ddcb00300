package vmapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestRunCommand(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sandboxes/sb-1/exec" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req["command"] != "echo hi" {
			t.Errorf("command = %q", req["command"])
		}
		json.NewEncoder(w).Encode(ExecResult{Output: "hi\n", ExitCode: 0})
	}))

	result, err := c.RunCommand(context.Background(), "sb-1", "echo hi")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if result.Output != "hi\n" || result.ExitCode != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestRunCommand_NonZeroExitIsNotError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ExecResult{Output: "NOT_RUNNING", ExitCode: 1})
	}))

	result, err := c.RunCommand(context.Background(), "sb-1", "pgrep -f gateway >/dev/null && echo RUNNING || { echo NOT_RUNNING; exit 1; }")
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
}

func TestCall_AuthError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "key revoked", http.StatusUnauthorized)
	}))

	_, err := c.ListProjects(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", authErr.StatusCode)
	}
}

func TestCall_ControlPlaneError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	err := c.DeleteSandbox(context.Background(), "sb-1")
	var cpErr *ControlPlaneError
	if !errors.As(err, &cpErr) {
		t.Fatalf("error = %v, want *ControlPlaneError", err)
	}
	if cpErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", cpErr.StatusCode)
	}
}

func TestCall_TimeoutIsTransient(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	c.httpClient.Timeout = 20 * time.Millisecond

	_, err := c.RunCommand(context.Background(), "sb-1", "sleep 10")
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("error = %v, want *TransientError", err)
	}
}

func TestCall_ContextDeadlineIsTransient(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.RunCommand(ctx, "sb-1", "true")
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("error = %v, want *TransientError", err)
	}
}

func TestCreateSandbox(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sandboxes" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(Sandbox{ID: "sb-9", ProjectID: "proj-1", Endpoint: "10.0.0.9", State: "running"})
	}))

	sb, err := c.CreateSandbox(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("CreateSandbox() error = %v", err)
	}
	if sb.ID != "sb-9" || sb.Endpoint != "10.0.0.9" {
		t.Errorf("sandbox = %+v", sb)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "key"); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := New("http://example.com", ""); err == nil {
		t.Error("expected error for empty API key")
	}
}
