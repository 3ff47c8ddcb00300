package provider

import "encoding/json"

// DefaultGatewayPort is the fixed loopback port the gateway binds to on the
// sandbox.
const DefaultGatewayPort = 18789

// Options carries the per-user inputs for rendering a config document.
type Options struct {
	// Model overrides the provider's default model when non-empty.
	Model string
	// TelegramBotToken enables the Telegram channel section when non-empty.
	TelegramBotToken string
	// GatewayToken authenticates local clients to the gateway.
	GatewayToken string
	// GatewayPort overrides DefaultGatewayPort when non-zero.
	GatewayPort int
}

// Document is the structured agent runtime configuration written to the
// sandbox. Rendering is a pure data transformation: identical inputs always
// produce an identical document.
type Document struct {
	Env      map[string]string      `json:"env"`
	Auth     map[string]AuthProfile `json:"auth"`
	Models   ModelRouting           `json:"models"`
	Channels *ChannelConfig         `json:"channels,omitempty"`
	Gateway  GatewayConfig          `json:"gateway"`
}

// AuthProfile declares how the runtime authenticates to a provider.
type AuthProfile struct {
	Provider string `json:"provider"`
	Mode     string `json:"mode"`
}

// ModelRouting selects the default model and, for providers outside the
// runtime's built-in default, declares the upstream route explicitly.
type ModelRouting struct {
	Default   string                   `json:"default"`
	Providers map[string]ProviderRoute `json:"providers,omitempty"`
}

// ProviderRoute declares an upstream provider endpoint and its models.
type ProviderRoute struct {
	BaseURL string   `json:"baseUrl,omitempty"`
	Models  []string `json:"models"`
}

// ChannelConfig holds optional messaging-channel settings.
type ChannelConfig struct {
	Telegram *TelegramChannel `json:"telegram,omitempty"`
}

// TelegramChannel configures the Telegram bridge.
type TelegramChannel struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
}

// GatewayConfig is the gateway's network binding. The gateway only ever
// listens on loopback; remote access goes through the control plane.
type GatewayConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	AuthToken string `json:"authToken"`
}

// RenderConfig builds the runtime config document for a resolved provider
// and credential.
func RenderConfig(desc *Descriptor, credential string, opts Options) Document {
	model := desc.DefaultModel
	if opts.Model != "" {
		model = opts.Model
	}

	port := opts.GatewayPort
	if port == 0 {
		port = DefaultGatewayPort
	}

	doc := Document{
		Env: map[string]string{
			desc.EnvVar: credential,
		},
		Auth: map[string]AuthProfile{
			desc.ID: {Provider: desc.ID, Mode: "api-key"},
		},
		Models: ModelRouting{Default: model},
		Gateway: GatewayConfig{
			Host:      "127.0.0.1",
			Port:      port,
			AuthToken: opts.GatewayToken,
		},
	}

	if desc.RequiresRouting {
		doc.Models.Providers = map[string]ProviderRoute{
			desc.ID: {
				BaseURL: desc.BaseURL,
				Models:  []string{model},
			},
		}
	}

	if opts.TelegramBotToken != "" {
		doc.Channels = &ChannelConfig{
			Telegram: &TelegramChannel{
				Enabled:  true,
				BotToken: opts.TelegramBotToken,
			},
		}
	}

	return doc
}

// Encode renders the document as indented JSON, the on-disk format the agent
// runtime reads.
func (d Document) Encode() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
