package config

import (
	"fmt"
	"strconv"
	"time"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SecretStatus reports which secrets were found, without their values.
func SecretStatus(cfg Config) []KeyInfo {
	values := map[string]string{
		secretX.name:          cfg.Secrets.XBearerToken,
		secretGemini.name:     cfg.Secrets.GeminiAPIKey,
		secretOpenRouter.name: cfg.Secrets.OpenRouterAPIKey,
	}
	var result []KeyInfo
	for _, s := range secretSpecs {
		state := "missing"
		if values[s.name] != "" {
			state = "set"
		}
		result = append(result, KeyInfo{Key: s.name, EnvVar: s.envs[0], Value: state})
	}
	return result
}

// SetKey writes a config key to the config file.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		switch s.typ {
		case kString:
			if isDurationKey(key) {
				if _, err := time.ParseDuration(value); err != nil {
					return fmt.Errorf("invalid duration value for %s: %w", key, err)
				}
			}
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		case kBool:
			if _, err := strconv.ParseBool(value); err != nil {
				return fmt.Errorf("invalid bool value for %s: %w", key, err)
			}
			return b.SetString(key, value)
		case kFloat:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Errorf("invalid float value for %s: %w", key, err)
			}
			return b.SetString(key, value)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

func isDurationKey(key string) bool {
	switch key {
	case "x.timeout", "gemini.timeout", "openrouter.timeout", "ollama.timeout", "cache.ttl", "media.timeout":
		return true
	}
	return false
}

// ValidKeys returns the list of valid config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
