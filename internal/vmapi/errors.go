package vmapi

import "fmt"

// AuthError indicates the control plane rejected our API key. The key is
// invalid or revoked; retrying the same call cannot succeed.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("vm api auth rejected (status %d): %s", e.StatusCode, e.Message)
}

// TransientError indicates a timeout or temporary network failure. The same
// call is safe to retry; whether to retry is the caller's decision.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("vm api %s: transient failure: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// ControlPlaneError is any other unexpected remote failure: not auth, not a
// timeout. It is reported verbatim and never retried automatically.
type ControlPlaneError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ControlPlaneError) Error() string {
	return fmt.Sprintf("vm api %s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
}
