package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "NOWPAYMENTS_"

// ProviderConfig is the plugin's settings surface: processor credentials,
// endpoint selection, the per-installation IPN signing secret, and the bits
// of host context the plugin renders or links to.
type ProviderConfig struct {
	// Endpoint selects the processor API: "live" or "sandbox".
	Endpoint string `koanf:"endpoint"`
	// APIKey authenticates requests to the processor.
	APIKey string `koanf:"api_key"`
	// IPNSecret is the shared key the processor signs callbacks with.
	IPNSecret string `koanf:"ipn_secret"`
	// SupportEmail is shown to buyers when an order cannot be fulfilled.
	SupportEmail string `koanf:"support_email"`
	// ReceiptURL is a printf pattern taking the order code, used to redirect
	// confirmed payments to the host's receipt page.
	ReceiptURL string `koanf:"receipt_url"`
	// SessionCookie names the host session cookie the pay view keys intents on.
	SessionCookie string `koanf:"session_cookie"`
}

func (c ProviderConfig) Defaults() map[string]any {
	return map[string]any{
		"endpoint":       "live",
		"session_cookie": "ticketd_session",
	}
}

func (c ProviderConfig) Sandbox() bool {
	return c.Endpoint == "sandbox"
}

// Load reads provider configuration in ascending precedence: built-in
// defaults, a YAML file (optional, empty path skips it), then NOWPAYMENTS_*
// environment variables.
func Load(path string) (*ProviderConfig, error) {
	k := koanf.New(".")

	var cfg ProviderConfig
	if err := k.Load(confmap.Provider(cfg.Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ProviderConfig) validate() error {
	if c.Endpoint != "live" && c.Endpoint != "sandbox" {
		return fmt.Errorf("endpoint must be \"live\" or \"sandbox\", got %q", c.Endpoint)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.IPNSecret == "" {
		return fmt.Errorf("ipn_secret is required")
	}
	return nil
}
