package secrets

import (
	"context"
	"os"
	"strings"
)

// FileResolver resolves secrets from local files, e.g. mounted Kubernetes
// secret volumes.
type FileResolver struct{}

// Scheme returns "file".
func (r *FileResolver) Scheme() string {
	return "file"
}

// Resolve reads the file named by a file:///path reference. Trailing
// whitespace is trimmed so a conventional trailing newline does not end up
// inside the secret.
func (r *FileResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := strings.TrimPrefix(reference, "file://")
	if path == "" || !strings.HasPrefix(path, "/") {
		return "", &InvalidReferenceError{Reference: reference, Reason: "expected file:///absolute/path"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Reference: reference, Backend: "file"}
		}
		return "", &BackendError{Backend: "file", Reference: reference, Reason: err.Error()}
	}

	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return "", &NotFoundError{Reference: reference, Backend: "file"}
	}
	return value, nil
}

func init() {
	Register(&FileResolver{})
}
