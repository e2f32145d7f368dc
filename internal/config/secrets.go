package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keychainService = "tweetlens"

type secretSpec struct {
	name    string
	envs    []string
	file    string
	account string
	apply   func(s *Secrets, v string)
}

var (
	secretX = secretSpec{
		name:    "X bearer token",
		envs:    []string{"TWEETLENS_X_BEARER_TOKEN", "X_BEARER_TOKEN"},
		file:    "x-token.txt",
		account: "x_bearer_token",
		apply:   func(s *Secrets, v string) { s.XBearerToken = v },
	}
	secretGemini = secretSpec{
		name:    "Gemini API key",
		envs:    []string{"TWEETLENS_GEMINI_API_KEY", "GOOGLE_API_KEY"},
		file:    "key-gemini.txt",
		account: "gemini_api_key",
		apply:   func(s *Secrets, v string) { s.GeminiAPIKey = v },
	}
	secretOpenRouter = secretSpec{
		name:    "OpenRouter API key",
		envs:    []string{"TWEETLENS_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"},
		file:    "key-openrouter.txt",
		account: "openrouter_api_key",
		apply:   func(s *Secrets, v string) { s.OpenRouterAPIKey = v },
	}
)

var secretSpecs = []secretSpec{secretX, secretGemini, secretOpenRouter}

// resolveSecrets fills cfg.Secrets: environment, then key file, then keychain.
func resolveSecrets(cfg *Config, kc keychain) {
	for _, s := range secretSpecs {
		if v := lookupSecret(s, cfg.KeysDir, kc); v != "" {
			s.apply(&cfg.Secrets, v)
		}
	}
}

func lookupSecret(s secretSpec, keysDir string, kc keychain) string {
	for _, env := range s.envs {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if keysDir != "" {
		data, err := os.ReadFile(filepath.Join(keysDir, s.file))
		if err == nil {
			if v := strings.TrimSpace(string(data)); v != "" {
				return v
			}
		} else if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read key file %s: %v\n", filepath.Join(keysDir, s.file), err)
		}
	}
	if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
		return v
	}
	return ""
}

func secretHint(s secretSpec) string {
	return fmt.Sprintf("%s (set %s, write it to %s in the keys directory%s)",
		s.name, s.envs[0], s.file, apiKeyHint(s.account))
}

// SecretNames lists the names accepted by StoreSecret.
func SecretNames() []string {
	return []string{"x", "gemini", "openrouter"}
}

// StoreSecret saves a secret in the platform keychain.
func StoreSecret(name, value string) error {
	var spec secretSpec
	switch name {
	case "x":
		spec = secretX
	case "gemini":
		spec = secretGemini
	case "openrouter":
		spec = secretOpenRouter
	default:
		return fmt.Errorf("unknown secret %q (want x, gemini or openrouter)", name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is empty", spec.name)
	}
	return keychainSet(keychainService, spec.account, value)
}
