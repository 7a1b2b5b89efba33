// Package config loads the bot configuration from a YAML file with
// environment variable expansion and .env support, and resolves the
// Perplexity API key through the keyring/env/config priority chain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/perplexity"
	"github.com/jholhewres/sonarbot/pkg/sonarbot/telegram"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "config.yaml"

// envVarPattern matches environment variable references in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Config holds all bot configuration.
type Config struct {
	// Telegram configures the bot transport and the allowed user.
	Telegram telegram.Config `yaml:"telegram"`

	// Perplexity configures the answer client.
	Perplexity perplexity.Config `yaml:"perplexity"`

	// Database configures the history store.
	Database DatabaseConfig `yaml:"database"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the SQLite history store.
type DatabaseConfig struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Perplexity: perplexity.DefaultConfig(),
		Database: DatabaseConfig{
			Path: "data/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
// Returns an error if any ${VAR:?error} pattern has its variable unset.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	return cfg, nil
}

// Parse parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Save writes a Config as YAML to the specified path.
// The API key is replaced with an environment variable reference so it
// never ends up in plaintext on disk.
func Save(cfg *Config, path string) error {
	sanitized := *cfg
	if sanitized.Perplexity.APIKey != "" && !IsEnvReference(sanitized.Perplexity.APIKey) {
		sanitized.Perplexity.APIKey = "${" + EnvAPIKey + "}"
	}

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.AllowedUserID == 0 {
		return fmt.Errorf("telegram.allowed_user_id is required")
	}
	if c.Perplexity.APIKey == "" || IsEnvReference(c.Perplexity.APIKey) {
		return fmt.Errorf("perplexity.api_key is not set (keyring, %s env var, or config)", EnvAPIKey)
	}
	return nil
}

// IsEnvReference reports whether a value is an unexpanded ${VAR} placeholder.
func IsEnvReference(value string) bool {
	return strings.HasPrefix(value, "${") || strings.HasPrefix(value, "$")
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
// godotenv does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default}, ${VAR:?error}, and $VAR
// references with their environment variable values. An unset ${VAR:?error}
// is returned with an "ERROR:" prefix for the caller to detect.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		modifierType := submatches[2]
		modifierValue := submatches[3]
		bareVar := submatches[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifierType {
		case "?":
			errorMsg := modifierValue
			if errorMsg == "" {
				errorMsg = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + errorMsg
		case "-":
			return modifierValue
		}
		return match
	})
}

// expandEnvVarsWithValidation is like expandEnvVars but returns an error
// if any ${VAR:?error} pattern has its variable unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	if idx := strings.Index(result, "ERROR:"); idx >= 0 {
		detail := result[idx+len("ERROR:"):]
		if end := strings.IndexAny(detail, "\n"); end >= 0 {
			detail = detail[:end]
		}
		name, msg, _ := strings.Cut(detail, ":")
		return "", fmt.Errorf("required variable %s not set: %s", name, msg)
	}
	return result, nil
}

// resolveRelativePaths makes the database path relative to the config file
// location instead of the process working directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	base := filepath.Dir(configPath)
	if cfg.Database.Path != "" && !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(base, cfg.Database.Path)
	}
}
