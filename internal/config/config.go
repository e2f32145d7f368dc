package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCredentialMissing is returned when a secret required by the selected
// backend cannot be found in the environment, key files or keychain.
var ErrCredentialMissing = errors.New("missing credential")

type Config struct {
	X          XConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Ollama     OllamaConfig
	Analysis   AnalysisConfig
	Cache      CacheConfig
	Media      MediaConfig
	Log        LogConfig
	// KeysDir holds plain-text key files (x-token.txt, key-gemini.txt,
	// key-openrouter.txt).
	KeysDir string
	Secrets Secrets
}

type XConfig struct {
	BaseURL    string
	MaxResults int
	Timeout    string
}

type GeminiConfig struct {
	BaseURL         string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
	TopK            int
	Timeout         string
}

type OpenRouterConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout string
}

type AnalysisConfig struct {
	Backend string
}

type CacheConfig struct {
	Dir string
	TTL string
}

type MediaConfig struct {
	Download bool
	Timeout  string
}

type LogConfig struct {
	Level string
}

// Secrets are resolved separately from the other keys and never written
// back to the config file.
type Secrets struct {
	XBearerToken     string
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

func defaults() Config {
	return Config{
		X: XConfig{
			BaseURL:    "https://api.twitter.com",
			MaxResults: 10,
			Timeout:    "30s",
		},
		Gemini: GeminiConfig{
			BaseURL:         "https://generativelanguage.googleapis.com",
			Model:           "gemini-1.5-flash",
			MaxOutputTokens: 2048,
			Temperature:     0.7,
			TopP:            0.8,
			TopK:            40,
			Timeout:         "120s",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "anthropic/claude-3-sonnet",
			Temperature: 0.7,
			MaxTokens:   1000,
			Timeout:     "120s",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llava",
			Timeout: "300s",
		},
		Analysis: AnalysisConfig{Backend: "gemini"},
		Cache: CacheConfig{
			Dir: defaultCacheDir(),
			TTL: "24h",
		},
		Media: MediaConfig{
			Download: true,
			Timeout:  "10s",
		},
		Log:     LogConfig{Level: "warn"},
		KeysDir: defaultKeysDir(),
	}
}

// Load reads configuration from the TOML file, environment variables, key
// files and the platform secret store.
//
// The file lives at $XDG_CONFIG_HOME/tweetlens/config.toml. Environment
// variables (TWEETLENS_*) override file values. Secrets are looked up in
// the environment first, then in KeysDir, then in the keychain (macOS
// Keychain, or $XDG_DATA_HOME/tweetlens/secrets.json elsewhere).
//
// Missing secrets are not an error here; see RequireCredentials.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, kc keychain) (Config, error) {
	b, err := openTOMLBackend(path)
	if err != nil {
		return Config{}, err
	}
	return loadWith(b, kc)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	resolveSecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	durations := map[string]string{
		"x.timeout":          cfg.X.Timeout,
		"gemini.timeout":     cfg.Gemini.Timeout,
		"openrouter.timeout": cfg.OpenRouter.Timeout,
		"ollama.timeout":     cfg.Ollama.Timeout,
		"cache.ttl":          cfg.Cache.TTL,
		"media.timeout":      cfg.Media.Timeout,
	}
	for key, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, v)
		}
	}
	if cfg.X.MaxResults < 1 || cfg.X.MaxResults > 100 {
		return fmt.Errorf("x.max_results must be between 1 and 100, got %d", cfg.X.MaxResults)
	}
	switch strings.ToLower(cfg.Analysis.Backend) {
	case "gemini", "openrouter", "ollama":
	default:
		return fmt.Errorf("analysis.backend must be gemini, openrouter or ollama, got %q", cfg.Analysis.Backend)
	}
	return nil
}

// Duration parses a duration that validate already accepted.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// RequireCredentials checks that every secret needed to fetch posts and to
// call backend is present.
func RequireCredentials(cfg Config, backend string) error {
	var missing []string
	if cfg.Secrets.XBearerToken == "" {
		missing = append(missing, secretHint(secretX))
	}
	switch strings.ToLower(backend) {
	case "gemini":
		if cfg.Secrets.GeminiAPIKey == "" {
			missing = append(missing, secretHint(secretGemini))
		}
	case "openrouter":
		if cfg.Secrets.OpenRouterAPIKey == "" {
			missing = append(missing, secretHint(secretOpenRouter))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCredentialMissing, strings.Join(missing, "; "))
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
