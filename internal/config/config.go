package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/tokengate/internal/domain"
)

// Config holds the tokengate service configuration.
type Config struct {
	HTTP      HTTPConfig                `yaml:"http"`
	Database  DatabaseConfig            `yaml:"database"`
	Registry  RegistryConfig            `yaml:"registry"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Quota     QuotaConfig               `yaml:"quota"`
	Auth      AuthConfig                `yaml:"auth"`
	Storage   StorageConfig             `yaml:"storage"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the local persistent store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RegistryConfig holds the remote token registry settings. Registry calls
// are bounded by TimeoutSec and their failures are soft for all callers.
type RegistryConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ProviderConfig holds per-provider endpoint and policy overrides. Zero
// policy fields fall back to the built-in defaults for that provider.
type ProviderConfig struct {
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	DefaultExpiryDays int    `yaml:"default_expiry_days"`
	DailyRequestLimit int64  `yaml:"daily_request_limit"`
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
}

// QuotaConfig holds quota ledger settings.
type QuotaConfig struct {
	Timezone string `yaml:"timezone"` // IANA zone for the calendar-day period key (default: UTC)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys"`
	// Admins lists principal IDs allowed to mutate shared credentials.
	Admins []string `yaml:"admins"`
}

// APIKeyConfig maps a bearer key to a principal.
type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// defaultEndpoints are the OpenAI-compatible chat endpoints per provider.
var defaultEndpoints = map[string]ProviderConfig{
	string(domain.ProviderGitHub): {
		BaseURL: "https://models.inference.ai.azure.com",
		Model:   "gpt-4o-mini",
	},
	string(domain.ProviderOpenAI): {
		Model: "gpt-4o-mini",
	},
	string(domain.ProviderGemini): {
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
		Model:   "gemini-2.0-flash",
	},
}

// ApplyDefaults fills empty fields with default values. Every supported
// provider ends up with a concrete endpoint and policy.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Registry.TimeoutSec <= 0 {
		c.Registry.TimeoutSec = 5
	}
	if c.Quota.Timezone == "" {
		c.Quota.Timezone = "UTC"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "tokengate:"
	}

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig, len(defaultEndpoints))
	}
	defaults := domain.DefaultPolicies()
	for _, p := range domain.Providers() {
		pc := c.Providers[string(p)]
		def := defaultEndpoints[string(p)]
		pol := defaults[p]
		if pc.BaseURL == "" {
			pc.BaseURL = def.BaseURL
		}
		if pc.Model == "" {
			pc.Model = def.Model
		}
		if pc.DefaultExpiryDays <= 0 {
			pc.DefaultExpiryDays = pol.DefaultExpiryDays
		}
		if pc.DailyRequestLimit <= 0 {
			pc.DailyRequestLimit = pol.DailyRequestLimit
		}
		if pc.DailyTokenLimit <= 0 {
			pc.DailyTokenLimit = pol.DailyTokenLimit
		}
		c.Providers[string(p)] = pc
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	for name := range c.Providers {
		if _, err := domain.ParseProvider(name); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("auth.api_keys[%d].key is required", i)
		}
		if k.UserID == "" {
			return fmt.Errorf("auth.api_keys[%d].user_id is required", i)
		}
	}
	return nil
}

// Policies builds the effective policy table: built-in defaults overridden
// by per-provider config. Format validators are never configurable.
func (c *Config) Policies() domain.PolicyTable {
	table := domain.DefaultPolicies()
	for _, p := range domain.Providers() {
		pc, ok := c.Providers[string(p)]
		if !ok {
			continue
		}
		pol := table[p]
		if pc.DefaultExpiryDays > 0 {
			pol.DefaultExpiryDays = pc.DefaultExpiryDays
		}
		if pc.DailyRequestLimit > 0 {
			pol.DailyRequestLimit = pc.DailyRequestLimit
		}
		if pc.DailyTokenLimit > 0 {
			pol.DailyTokenLimit = pc.DailyTokenLimit
		}
		table[p] = pol
	}
	return table
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables expand to an empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.TrimSuffix(strings.TrimPrefix(string(match), "${"), "}")
		return []byte(os.Getenv(name))
	})
}
