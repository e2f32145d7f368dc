package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "x.base_url", typ: kString, env: "TWEETLENS_X_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.X.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.X.BaseURL },
	},
	{
		key: "x.max_results", typ: kInt, env: "TWEETLENS_X_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.X.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.X.MaxResults },
	},
	{
		key: "x.timeout", typ: kString, env: "TWEETLENS_X_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.X.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.X.Timeout },
	},
	{
		key: "gemini.base_url", typ: kString, env: "TWEETLENS_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.model", typ: kString, env: "TWEETLENS_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.max_output_tokens", typ: kInt, env: "TWEETLENS_GEMINI_MAX_OUTPUT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxOutputTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxOutputTokens },
	},
	{
		key: "gemini.temperature", typ: kFloat, env: "TWEETLENS_GEMINI_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Gemini.Temperature },
	},
	{
		key: "gemini.top_p", typ: kFloat, env: "TWEETLENS_GEMINI_TOP_P",
		apply:   func(cfg *Config, v any) { cfg.Gemini.TopP = v.(float64) },
		extract: func(cfg Config) any { return cfg.Gemini.TopP },
	},
	{
		key: "gemini.top_k", typ: kInt, env: "TWEETLENS_GEMINI_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Gemini.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.TopK },
	},
	{
		key: "gemini.timeout", typ: kString, env: "TWEETLENS_GEMINI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Timeout },
	},
	{
		key: "openrouter.base_url", typ: kString, env: "TWEETLENS_OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.BaseURL },
	},
	{
		key: "openrouter.model", typ: kString, env: "TWEETLENS_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Model },
	},
	{
		key: "openrouter.temperature", typ: kFloat, env: "TWEETLENS_OPENROUTER_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Temperature },
	},
	{
		key: "openrouter.max_tokens", typ: kInt, env: "TWEETLENS_OPENROUTER_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.OpenRouter.MaxTokens },
	},
	{
		key: "openrouter.timeout", typ: kString, env: "TWEETLENS_OPENROUTER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "TWEETLENS_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "TWEETLENS_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.timeout", typ: kString, env: "TWEETLENS_OLLAMA_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Timeout },
	},
	{
		key: "analysis.backend", typ: kString, env: "TWEETLENS_ANALYSIS_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Analysis.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Analysis.Backend },
	},
	{
		key: "cache.dir", typ: kString, env: "TWEETLENS_CACHE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Cache.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Dir },
	},
	{
		key: "cache.ttl", typ: kString, env: "TWEETLENS_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "media.download", typ: kBool, env: "TWEETLENS_MEDIA_DOWNLOAD",
		apply:   func(cfg *Config, v any) { cfg.Media.Download = v.(bool) },
		extract: func(cfg Config) any { return cfg.Media.Download },
	},
	{
		key: "media.timeout", typ: kString, env: "TWEETLENS_MEDIA_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Media.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Media.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "TWEETLENS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "keys_dir", typ: kString, env: "TWEETLENS_KEYS_DIR",
		apply:   func(cfg *Config, v any) { cfg.KeysDir = v.(string) },
		extract: func(cfg Config) any { return cfg.KeysDir },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
