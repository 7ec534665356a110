package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models bountyd.yml.
type Config struct {
	GitHub struct {
		Token   string `yaml:"token"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"github"`
	Orchestrator struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"orchestrator"`
	Discovery struct {
		PlatformFeedURL string `yaml:"platform_feed_url"`
		GitHubQuery     string `yaml:"github_query"`
	} `yaml:"discovery"`
	Tenants  []TenantConfig  `yaml:"tenants"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type TenantConfig struct {
	ID           string `yaml:"id"`
	Host         string `yaml:"host"`
	Name         string `yaml:"name"`
	PrimaryColor string `yaml:"primary_color"`
	LogoURL      string `yaml:"logo_url"`
	Tagline      string `yaml:"tagline"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Format         string   `yaml:"format"` // "json" or "slack"
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run bountyd config init", path)
		}
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets process env override file values so deployments can keep
// secrets out of bountyd.yml.
func (c *Config) applyEnv() {
	if v := os.Getenv("BOUNTYBOARD_GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("BOUNTYBOARD_ORCHESTRATOR_URL"); v != "" {
		c.Orchestrator.BaseURL = v
	}
	if v := os.Getenv("BOUNTYBOARD_FEED_URL"); v != "" {
		c.Discovery.PlatformFeedURL = v
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.GitHub.BaseURL != "" {
		if _, err := url.Parse(c.GitHub.BaseURL); err != nil {
			return fmt.Errorf("config.github.base_url invalid: %w", err)
		}
	}
	if c.Orchestrator.BaseURL != "" {
		u, err := url.Parse(c.Orchestrator.BaseURL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("config.orchestrator.base_url must be an absolute URL")
		}
	}
	if c.Orchestrator.TimeoutSeconds < 0 {
		return fmt.Errorf("config.orchestrator.timeout_seconds must be >= 0")
	}
	seen := map[string]bool{}
	for i, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("config.tenants[%d].id is required", i)
		}
		if t.Host == "" {
			return fmt.Errorf("tenant %s missing host", t.ID)
		}
		if seen[t.Host] {
			return fmt.Errorf("tenant host %s declared twice", t.Host)
		}
		seen[t.Host] = true
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		switch hook.Format {
		case "", "json", "slack":
		default:
			return fmt.Errorf("webhook %s has unknown format %q", hook.URL, hook.Format)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %s timeout_seconds must be >= 0", hook.URL)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "bountyd.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `github:
  token: ""
  base_url: https://api.github.com

orchestrator:
  base_url: ""
  timeout_seconds: 15

discovery:
  platform_feed_url: ""
  github_query: "label:bounty state:open"

tenants:
  - id: default
    host: localhost
    name: Bountyboard
    primary_color: "#1f6feb"
    tagline: "Track every bounty from open to paid"

webhooks: []
`
