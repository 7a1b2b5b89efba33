// Package config – keyring.go stores the Perplexity API key in the
// operating system's native keyring (Linux: Secret Service/GNOME Keyring,
// macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving the key:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (PERPLEXITY_API_KEY)
//  3. config.yaml value (least secure — plaintext on disk)
package config

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "sonarbot"

	// keyringAPIKey is the key name for the Perplexity API key.
	keyringAPIKey = "perplexity_api_key"

	// EnvAPIKey is the environment variable holding the Perplexity API key.
	EnvAPIKey = "PERPLEXITY_API_KEY"
)

// StoreKeyring saves the API key to the OS keyring.
func StoreKeyring(value string) error {
	return keyring.Set(keyringService, keyringAPIKey, value)
}

// GetKeyring retrieves the API key from the OS keyring.
// Returns empty string if not found.
func GetKeyring() string {
	val, err := keyring.Get(keyringService, keyringAPIKey)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes the API key from the OS keyring.
func DeleteKeyring() error {
	return keyring.Delete(keyringService, keyringAPIKey)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__sonarbot_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey resolves the Perplexity API key using the priority chain
// keyring → env var → config value, and updates the config in-place.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(); val != "" {
		cfg.Perplexity.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	if val := os.Getenv(EnvAPIKey); val != "" {
		cfg.Perplexity.APIKey = val
		logger.Debug("API key loaded from environment")
		return
	}

	if cfg.Perplexity.APIKey != "" && !IsEnvReference(cfg.Perplexity.APIKey) {
		logger.Debug("API key loaded from config")
		return
	}

	logger.Warn("no Perplexity API key found",
		"hint", "run 'sonarbot setup' or set "+EnvAPIKey)
}
