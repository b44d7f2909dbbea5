// ABOUTME: Configuration loading and parsing for the nanobot gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete nanobot gateway configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	OpenAIAPI OpenAIAPIConfig `yaml:"openaiapi"`
	WebUI     WebUIConfig     `yaml:"webui"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// GatewayConfig holds settings shared by every transport channel.
type GatewayConfig struct {
	// AllowList restricts which sender IDs may submit work to the agent.
	// Empty means every sender is allowed.
	AllowList []string `yaml:"allow_list"`

	// MediaDir is where uploaded files are stored. Defaults to
	// ~/.nanobot/media when unset.
	MediaDir string `yaml:"media_dir"`
}

// OpenAIAPIConfig holds configuration for the OpenAI-compatible HTTP channel.
type OpenAIAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// APIKey is a single accepted bearer token, mapped to the "api:default"
	// principal. APIKeys maps tokens to explicit principal IDs.
	APIKey  string            `yaml:"api_key"`
	APIKeys map[string]string `yaml:"api_keys"`

	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// WebUIConfig holds configuration for the browser chat channel.
type WebUIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Title   string `yaml:"title"`

	// Username and Password gate the login endpoint. Leaving both empty
	// disables authentication for the web UI entirely.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// DefaultRequestTimeout is applied when openaiapi.request_timeout is unset.
const DefaultRequestTimeout = 120 * time.Second

// Default returns a configuration with sensible defaults for a local
// deployment. Load starts from these values before applying the file.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			MediaDir: defaultMediaDir(),
		},
		OpenAIAPI: OpenAIAPIConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:8090",
			RequestTimeout: DefaultRequestTimeout,
		},
		WebUI: WebUIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8091",
			Title:   "nanobot",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// defaultMediaDir resolves ~/.nanobot/media, falling back to a relative
// directory when the home directory cannot be determined.
func defaultMediaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "media"
	}
	return filepath.Join(home, ".nanobot", "media")
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if !c.OpenAIAPI.Enabled && !c.WebUI.Enabled {
		return fmt.Errorf("at least one of openaiapi or webui must be enabled")
	}

	if c.OpenAIAPI.Enabled {
		if c.OpenAIAPI.Addr == "" {
			return fmt.Errorf("openaiapi.addr is required when openaiapi is enabled")
		}
		// Authentication is mandatory for the OpenAI-compatible API:
		// refuse to start rather than serve an open relay.
		if c.OpenAIAPI.APIKey == "" && len(c.OpenAIAPI.APIKeys) == 0 {
			return fmt.Errorf("openaiapi requires authentication: set openaiapi.api_key or openaiapi.api_keys")
		}
	}

	if c.WebUI.Enabled {
		if c.WebUI.Addr == "" {
			return fmt.Errorf("webui.addr is required when webui is enabled")
		}
		if (c.WebUI.Username == "") != (c.WebUI.Password == "") {
			return fmt.Errorf("webui.username and webui.password must be set together")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics is enabled")
	}

	return nil
}

// APIKeyMap returns the accepted bearer tokens and their server-side
// principal IDs, merging the single api_key into the api_keys mapping.
func (c *OpenAIAPIConfig) APIKeyMap() map[string]string {
	keys := make(map[string]string, len(c.APIKeys)+1)
	for token, principal := range c.APIKeys {
		keys[token] = principal
	}
	if c.APIKey != "" {
		if _, exists := keys[c.APIKey]; !exists {
			keys[c.APIKey] = "api:default"
		}
	}
	return keys
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.OpenAIAPI.RequestTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.OpenAIAPI.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.OpenAIAPI.RequestTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("request_timeout must be positive, got %q", cfg.OpenAIAPI.RequestTimeoutRaw)
		}
		cfg.OpenAIAPI.RequestTimeout = d
	}

	return nil
}
