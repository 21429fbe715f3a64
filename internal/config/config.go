package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration for the memobot gateway.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Webhook     WebhookConfig     `json:"webhook"`
	RateLimit   RateLimitConfig   `json:"rateLimit"`
	Storage     StorageConfig     `json:"storage"`
	MemoryStore MemoryStoreConfig `json:"memoryStore"`
	Media       MediaConfig       `json:"media"`
	Classifier  ClassifierConfig  `json:"classifier"`
}

type GeneralConfig struct {
	DataDir  string `json:"dataDir"`
	LogLevel string `json:"logLevel"` // "debug" | "info" | "warn" | "error"
}

type WebhookConfig struct {
	Port          int    `json:"port"`
	Path          string `json:"path"`
	PublicBaseURL string `json:"publicBaseUrl"`
	SigningSecret string `json:"signingSecret,omitempty"` // prefer MEMOBOT_SIGNING_SECRET
}

// Rule is one fixed-window limit.
type Rule struct {
	Max           int `json:"max"`
	WindowSeconds int `json:"windowSeconds"`
}

type RateLimitConfig struct {
	Global       Rule            `json:"global"`
	Routes       map[string]Rule `json:"routes,omitempty"`
	Identity     Rule            `json:"identity"`
	SweepSeconds int             `json:"sweepSeconds"`
}

type StorageConfig struct {
	DBPath string `json:"dbPath"`
}

type MemoryStoreConfig struct {
	BaseURL        string `json:"baseUrl"`
	APIKey         string `json:"apiKey,omitempty"` // prefer MEMOBOT_MEMORY_STORE_API_KEY
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
	DegradedMode   bool   `json:"degradedMode"` // fall back to local keyword search when the store is down
}

type MediaConfig struct {
	BaseURL        string `json:"baseUrl"`
	APIKey         string `json:"apiKey,omitempty"` // prefer MEMOBOT_MEDIA_API_KEY
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type ClassifierConfig struct {
	KeywordsPath string `json:"keywordsPath,omitempty"`
	SearchLimit  int    `json:"searchLimit"`
}

// Secrets are credentials loaded straight from the environment so they never
// have to live in the config file. Non-empty values override the file.
type Secrets struct {
	SigningSecret     string `env:"MEMOBOT_SIGNING_SECRET"`
	MemoryStoreAPIKey string `env:"MEMOBOT_MEMORY_STORE_API_KEY"`
	MediaAPIKey       string `env:"MEMOBOT_MEDIA_API_KEY"`
}

// DefaultConfigDir returns the default config directory (~/.memobot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memobot"
	}
	return filepath.Join(home, ".memobot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	cfg.Classifier.KeywordsPath = ExpandPath(cfg.Classifier.KeywordsPath)

	secrets, err := env.ParseAs[Secrets]()
	if err != nil {
		return nil, fmt.Errorf("cannot read secrets from environment: %w", err)
	}
	applySecrets(cfg, secrets)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applySecrets(cfg *Config, s Secrets) {
	if s.SigningSecret != "" {
		cfg.Webhook.SigningSecret = s.SigningSecret
	}
	if s.MemoryStoreAPIKey != "" {
		cfg.MemoryStore.APIKey = s.MemoryStoreAPIKey
	}
	if s.MediaAPIKey != "" {
		cfg.Media.APIKey = s.MediaAPIKey
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Sanitize returns a copy with credentials redacted, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.Webhook.SigningSecret != "" {
		out.Webhook.SigningSecret = "***"
	}
	if out.MemoryStore.APIKey != "" {
		out.MemoryStore.APIKey = "***"
	}
	if out.Media.APIKey != "" {
		out.Media.APIKey = "***"
	}
	return &out
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Webhook.Port < 1 || cfg.Webhook.Port > 65535 {
		errs = append(errs, "webhook.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		errs = append(errs, "webhook.path must start with /")
	}

	checkRule := func(name string, r Rule) {
		if r.Max < 1 {
			errs = append(errs, name+".max must be >= 1")
		}
		if r.WindowSeconds < 1 {
			errs = append(errs, name+".windowSeconds must be >= 1")
		}
	}
	checkRule("rateLimit.global", cfg.RateLimit.Global)
	checkRule("rateLimit.identity", cfg.RateLimit.Identity)
	for name, r := range cfg.RateLimit.Routes {
		checkRule("rateLimit.routes."+name, r)
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.dbPath is required")
	}
	if cfg.MemoryStore.BaseURL == "" && !cfg.MemoryStore.DegradedMode {
		errs = append(errs, "memoryStore.baseUrl is required unless degradedMode is enabled")
	}
	if cfg.MemoryStore.TimeoutSeconds < 1 {
		errs = append(errs, "memoryStore.timeoutSeconds must be >= 1")
	}
	if cfg.Classifier.SearchLimit < 1 {
		errs = append(errs, "classifier.searchLimit must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
