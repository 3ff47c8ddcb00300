package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_DispatchesByScheme(t *testing.T) {
	t.Setenv("BASTION_TEST_SECRET", "shh")

	value, err := Resolve(context.Background(), "env://BASTION_TEST_SECRET")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if value != "shh" {
		t.Errorf("value = %q", value)
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		reference string
		wantType  any
	}{
		{"no-scheme", &InvalidReferenceError{}},
		{"op://vault/item", &UnsupportedSchemeError{}},
	}
	for _, tt := range tests {
		_, err := Resolve(context.Background(), tt.reference)
		if err == nil {
			t.Errorf("Resolve(%q) expected error", tt.reference)
			continue
		}
		switch tt.wantType.(type) {
		case *InvalidReferenceError:
			var e *InvalidReferenceError
			if !errors.As(err, &e) {
				t.Errorf("Resolve(%q) error = %T, want InvalidReferenceError", tt.reference, err)
			}
		case *UnsupportedSchemeError:
			var e *UnsupportedSchemeError
			if !errors.As(err, &e) {
				t.Errorf("Resolve(%q) error = %T, want UnsupportedSchemeError", tt.reference, err)
			}
		}
	}
}

func TestEnvResolver(t *testing.T) {
	r := &EnvResolver{}

	t.Setenv("BASTION_KEY", "value")
	value, err := r.Resolve(context.Background(), "env://BASTION_KEY")
	if err != nil || value != "value" {
		t.Errorf("Resolve() = %q, %v", value, err)
	}

	_, err = r.Resolve(context.Background(), "env://BASTION_UNSET_KEY")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want NotFoundError", err)
	}

	_, err = r.Resolve(context.Background(), "env://")
	var invalid *InvalidReferenceError
	if !errors.As(err, &invalid) {
		t.Errorf("error = %v, want InvalidReferenceError", err)
	}
}

func TestFileResolver(t *testing.T) {
	r := &FileResolver{}
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	value, err := r.Resolve(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if value != "file-secret" {
		t.Errorf("value = %q, trailing newline should be trimmed", value)
	}

	_, err = r.Resolve(context.Background(), "file://"+filepath.Join(t.TempDir(), "missing"))
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("error = %v, want NotFoundError", err)
	}

	_, err = r.Resolve(context.Background(), "file://relative/path")
	var invalid *InvalidReferenceError
	if !errors.As(err, &invalid) {
		t.Errorf("error = %v, want InvalidReferenceError", err)
	}
}

func TestParseSMReference(t *testing.T) {
	tests := []struct {
		ref        string
		wantRegion string
		wantName   string
		wantErr    bool
	}{
		{"sm:///bastion/master-key", "", "bastion/master-key", false},
		{"sm://eu-central-1/bastion-key", "eu-central-1", "bastion-key", false},
		{"sm://", "", "", true},
		{"ssm:///param", "", "", true},
	}
	for _, tt := range tests {
		region, name, err := parseSMReference(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSMReference(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if region != tt.wantRegion || name != tt.wantName {
			t.Errorf("parseSMReference(%q) = (%q, %q), want (%q, %q)",
				tt.ref, region, name, tt.wantRegion, tt.wantName)
		}
	}
}
