package provider

import "testing"

func TestDetect_SpecificPrefixes(t *testing.T) {
	tests := []struct {
		credential string
		wantID     string
	}{
		{"sk-ant-api03-abcdef", "anthropic"},
		{"sk-ant-oat01-abcdef", "anthropic"},
		{"sk-or-v1-abcdef", "openrouter"},
		{"sk-proj-abcdef", "openai"},
		{"AIzaSyAbcdef", "google"},
		{"gsk_abcdef", "groq"},
		{"xai-abcdef", "xai"},
	}
	for _, tt := range tests {
		got := Detect(tt.credential)
		if got == nil {
			t.Errorf("Detect(%q) = nil, want %q", tt.credential, tt.wantID)
			continue
		}
		if got.ID != tt.wantID {
			t.Errorf("Detect(%q) = %q, want %q", tt.credential, got.ID, tt.wantID)
		}
	}
}

func TestDetect_NoMatch(t *testing.T) {
	for _, credential := range []string{"", "hunter2", "ghp_abcdef"} {
		if got := Detect(credential); got != nil {
			t.Errorf("Detect(%q) = %q, want nil", credential, got.ID)
		}
	}
}

func TestDetect_GenericPrefixIsAmbiguous(t *testing.T) {
	// A bare "sk-" key is issued by both OpenAI and DeepSeek. Detect must not
	// pick one silently.
	credential := "sk-abcdef1234567890"

	if got := Detect(credential); got != nil {
		t.Errorf("Detect(%q) = %q, want nil for ambiguous credential", credential, got.ID)
	}

	candidates := Ambiguous(credential)
	if len(candidates) < 2 {
		t.Fatalf("Ambiguous(%q) = %d candidates, want >= 2", credential, len(candidates))
	}

	ids := make(map[string]bool)
	for _, d := range candidates {
		ids[d.ID] = true
	}
	if !ids["openai"] || !ids["deepseek"] {
		t.Errorf("Ambiguous(%q) ids = %v, want openai and deepseek", credential, ids)
	}
}

func TestAmbiguous_EmptyForSpecificMatch(t *testing.T) {
	// sk-ant- extends sk-, but the longer prefix wins outright.
	if got := Ambiguous("sk-ant-api03-abcdef"); got != nil {
		t.Errorf("Ambiguous() = %v, want nil", got)
	}
	if got := Ambiguous("no-match-at-all"); got != nil {
		t.Errorf("Ambiguous() = %v, want nil", got)
	}
}

func TestByID(t *testing.T) {
	// Phase two of disambiguation: explicit id lookup bypasses detection.
	d := ByID("deepseek")
	if d == nil || d.ID != "deepseek" {
		t.Fatalf("ByID(deepseek) = %+v", d)
	}
	if ByID("unknown") != nil {
		t.Error("ByID(unknown) should return nil")
	}
}

func TestList_Immutable(t *testing.T) {
	a := List()
	a[0].ID = "mutated"
	b := List()
	if b[0].ID == "mutated" {
		t.Error("List() must return a copy of the catalog")
	}
}

func TestDetect_Deterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		if got := Detect("sk-ant-api03-x"); got == nil || got.ID != "anthropic" {
			t.Fatalf("iteration %d: Detect = %+v", i, got)
		}
	}
}
