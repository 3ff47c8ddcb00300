package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	return cmd, out
}

func TestResolveProvider_Explicit(t *testing.T) {
	cmd, _ := newTestCmd()

	id, err := resolveProvider(cmd, "sk-whatever", "deepseek")
	if err != nil {
		t.Fatalf("resolveProvider() error = %v", err)
	}
	if id != "deepseek" {
		t.Errorf("id = %q", id)
	}
}

func TestResolveProvider_ExplicitUnknown(t *testing.T) {
	cmd, _ := newTestCmd()

	_, err := resolveProvider(cmd, "sk-whatever", "nonsense")
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("error = %v", err)
	}
}

func TestResolveProvider_Detected(t *testing.T) {
	cmd, out := newTestCmd()

	id, err := resolveProvider(cmd, "sk-ant-abc123", "")
	if err != nil {
		t.Fatalf("resolveProvider() error = %v", err)
	}
	if id != "anthropic" {
		t.Errorf("id = %q", id)
	}
	if !strings.Contains(out.String(), "detected provider") {
		t.Errorf("output = %q", out.String())
	}
}

func TestResolveProvider_AmbiguousListsCandidates(t *testing.T) {
	cmd, out := newTestCmd()

	_, err := resolveProvider(cmd, "sk-abc123", "")
	if err == nil || !strings.Contains(err.Error(), "--provider") {
		t.Fatalf("error = %v, want disambiguation request", err)
	}
	if !strings.Contains(out.String(), "openai") || !strings.Contains(out.String(), "deepseek") {
		t.Errorf("candidate set missing from output: %q", out.String())
	}
}
