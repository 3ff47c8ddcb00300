package secrets

import (
	"context"
	"os"
	"strings"
)

// EnvResolver resolves secrets from process environment variables.
type EnvResolver struct{}

// Scheme returns "env".
func (r *EnvResolver) Scheme() string {
	return "env"
}

// Resolve reads the variable named by an env://VAR_NAME reference.
func (r *EnvResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := strings.TrimPrefix(reference, "env://")
	if name == "" || strings.ContainsAny(name, "/=") {
		return "", &InvalidReferenceError{Reference: reference, Reason: "expected env://VAR_NAME"}
	}

	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", &NotFoundError{Reference: reference, Backend: "environment"}
	}
	return value, nil
}

func init() {
	Register(&EnvResolver{})
}
