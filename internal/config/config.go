package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml.
type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		JWTSecret       string `yaml:"jwt_secret"`
		TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	} `yaml:"server"`
	Lifecycle struct {
		// StrictTransitions gates the status transition graph. Off by
		// default: any enumerated status may replace any other, which is
		// what the deployed system accepts.
		StrictTransitions bool `yaml:"strict_transitions"`
	} `yaml:"lifecycle"`
	Aggregation struct {
		// Recompute makes estimate/invoice totals be recomputed from the
		// referenced tasks; a caller total disagreeing beyond Tolerance is
		// rejected. Off by default: the caller-supplied total is trusted.
		Recompute bool    `yaml:"recompute"`
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"aggregation"`
	Inventory struct {
		ReorderThreshold int `yaml:"reorder_threshold"`
	} `yaml:"inventory"`
	Providers Providers `yaml:"providers"`
}

// Providers configures the external service adapters. Each adapter makes a
// single attempt per provider with the shared bounded timeout; there is no
// retry policy.
type Providers struct {
	TimeoutSeconds int              `yaml:"timeout_seconds"`
	Geocode        ProviderSettings `yaml:"geocode"`
	Postal         ProviderSettings `yaml:"postal"`
	OCR            []ProviderSettings `yaml:"ocr"`
	Directions     ProviderSettings `yaml:"directions"`
	Push           ProviderSettings `yaml:"push"`
}

type ProviderSettings struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, falling back to defaults when
// no fieldline.yml exists.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.TokenTTLMinutes <= 0 {
		return fmt.Errorf("config.server.token_ttl_minutes must be positive")
	}
	if c.Aggregation.Tolerance < 0 {
		return fmt.Errorf("config.aggregation.tolerance must not be negative")
	}
	if c.Inventory.ReorderThreshold < 0 {
		return fmt.Errorf("config.inventory.reorder_threshold must not be negative")
	}
	if c.Providers.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.providers.timeout_seconds must be positive")
	}
	seen := map[string]bool{}
	for _, p := range c.Providers.OCR {
		if p.Name == "" {
			return fmt.Errorf("config.providers.ocr entries need a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config.providers.ocr has duplicate name %s", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
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

const defaultTemplate = `server:
  addr: :8080
  jwt_secret: ""
  token_ttl_minutes: 1440

lifecycle:
  strict_transitions: false

aggregation:
  recompute: false
  tolerance: 0.01

inventory:
  reorder_threshold: 5

providers:
  timeout_seconds: 10

  geocode:
    name: maps
    url: ""
    api_key: ""

  postal:
    name: postal
    url: ""
    api_key: ""

  ocr:
    - name: vision
      url: ""
      api_key: ""
    - name: textract
      url: ""
      api_key: ""
    - name: docscan
      url: ""
      api_key: ""

  directions:
    name: maps
    url: ""
    api_key: ""

  push:
    name: apns
    url: ""
    api_key: ""
`
