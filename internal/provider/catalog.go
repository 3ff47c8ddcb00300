// Package provider maps API credentials to upstream inference providers and
// renders the agent runtime configuration for a chosen provider.
//
// Detection is structural: each provider publishes the key prefixes it
// issues, and a credential is matched against the catalog in specificity
// order. A bare "sk-" key is issued by more than one vendor, so detection
// refuses to guess and instead reports the ambiguity for the caller to
// resolve with an explicit provider id.
package provider

// Descriptor describes one entry in the fixed provider catalog.
type Descriptor struct {
	// ID is the canonical provider identifier (e.g. "anthropic").
	ID string
	// DisplayName is the human-readable name shown in pickers.
	DisplayName string
	// EnvVar is the environment variable the agent runtime reads the
	// credential from.
	EnvVar string
	// DefaultModel is used when the caller does not override the model.
	DefaultModel string
	// Prefixes are the credential prefixes this provider issues, most
	// specific first.
	Prefixes []string
	// RequiresRouting marks providers that need an explicit model-routing
	// declaration in the generated config; the runtime default only covers
	// the primary provider.
	RequiresRouting bool
	// BaseURL overrides the upstream endpoint when non-empty.
	BaseURL string
}

// catalog is the immutable, process-wide provider catalog. Order here is
// presentation order only; detection order is driven by prefix specificity.
var catalog = []Descriptor{
	{
		ID:           "anthropic",
		DisplayName:  "Anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: "claude-sonnet-4-20250514",
		Prefixes:     []string{"sk-ant-"},
	},
	{
		ID:              "openrouter",
		DisplayName:     "OpenRouter",
		EnvVar:          "OPENROUTER_API_KEY",
		DefaultModel:    "anthropic/claude-sonnet-4",
		Prefixes:        []string{"sk-or-"},
		RequiresRouting: true,
		BaseURL:         "https://openrouter.ai/api/v1",
	},
	{
		ID:              "openai",
		DisplayName:     "OpenAI",
		EnvVar:          "OPENAI_API_KEY",
		DefaultModel:    "gpt-4o",
		Prefixes:        []string{"sk-proj-", "sk-"},
		RequiresRouting: true,
	},
	{
		ID:              "deepseek",
		DisplayName:     "DeepSeek",
		EnvVar:          "DEEPSEEK_API_KEY",
		DefaultModel:    "deepseek-chat",
		Prefixes:        []string{"sk-"},
		RequiresRouting: true,
		BaseURL:         "https://api.deepseek.com",
	},
	{
		ID:              "google",
		DisplayName:     "Google Gemini",
		EnvVar:          "GEMINI_API_KEY",
		DefaultModel:    "gemini-2.5-pro",
		Prefixes:        []string{"AIza"},
		RequiresRouting: true,
	},
	{
		ID:              "groq",
		DisplayName:     "Groq",
		EnvVar:          "GROQ_API_KEY",
		DefaultModel:    "llama-3.3-70b-versatile",
		Prefixes:        []string{"gsk_"},
		RequiresRouting: true,
	},
	{
		ID:              "xai",
		DisplayName:     "xAI",
		EnvVar:          "XAI_API_KEY",
		DefaultModel:    "grok-3",
		Prefixes:        []string{"xai-"},
		RequiresRouting: true,
	},
	{
		ID:              "mistral",
		DisplayName:     "Mistral",
		EnvVar:          "MISTRAL_API_KEY",
		DefaultModel:    "mistral-large-latest",
		RequiresRouting: true,
	},
}

// List returns the full catalog in presentation order.
func List() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// ByID returns the descriptor for an explicit provider id, bypassing
// detection. This is phase two of the disambiguation protocol. Returns nil
// for unknown ids.
func ByID(id string) *Descriptor {
	for i := range catalog {
		if catalog[i].ID == id {
			d := catalog[i]
			return &d
		}
	}
	return nil
}
