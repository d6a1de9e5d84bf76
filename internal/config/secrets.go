package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service name secrets are stored under.
const KeyringService = "charlotte"

const (
	envPrefix     = "env:"
	keyringPrefix = "keyring:"
)

// loadDotEnv loads a .env file next to the config file, then one in the
// working directory. Existing environment variables win.
func loadDotEnv(configPath string) {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// ResolveSecret turns a secret reference into its value.
//
//	"env:OPENAI_API_KEY"    -> value of $OPENAI_API_KEY
//	"keyring:openai"        -> OS keyring entry "openai" under KeyringService
//	anything else           -> the literal value
func ResolveSecret(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, envPrefix):
		return os.Getenv(strings.TrimPrefix(ref, envPrefix)), nil
	case strings.HasPrefix(ref, keyringPrefix):
		name := strings.TrimPrefix(ref, keyringPrefix)
		val, err := keyring.Get(KeyringService, name)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring entry %q not found", name)
		}
		if err != nil {
			return "", fmt.Errorf("read keyring entry %q: %w", name, err)
		}
		return val, nil
	default:
		return ref, nil
	}
}

// StoreSecret saves value in the OS keyring and returns the reference to
// put in the config file.
func StoreSecret(name, value string) (string, error) {
	if err := keyring.Set(KeyringService, name, value); err != nil {
		return "", fmt.Errorf("store keyring entry %q: %w", name, err)
	}
	return keyringPrefix + name, nil
}

// resolveSecrets replaces secret references with their values and falls
// back to the conventional environment variables for empty keys.
func (c *Config) resolveSecrets() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"llm.api_key", &c.LLM.APIKey, "OPENAI_API_KEY"},
		{"llm.anthropic.api_key", &c.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY"},
		{"llm.embedding.api_key", &c.LLM.Embedding.APIKey, ""},
		{"sources.s3.secret_access_key", &c.Sources.S3.SecretAccessKey, ""},
	}
	for _, f := range fields {
		val, err := ResolveSecret(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		if val == "" && f.fallback != "" {
			val = os.Getenv(f.fallback)
		}
		*f.value = val
	}
	if c.LLM.Embedding.APIKey == "" {
		switch c.LLM.Embedding.Provider {
		case "gemini":
			c.LLM.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.LLM.Embedding.APIKey = c.LLM.APIKey
		}
	}
	return nil
}
