package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kalambet/tweetlens/internal/analyzer"
	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/config"
	"github.com/kalambet/tweetlens/internal/fetcher"
	"github.com/kalambet/tweetlens/internal/gemini"
	"github.com/kalambet/tweetlens/internal/media"
	"github.com/kalambet/tweetlens/internal/ollama"
	"github.com/kalambet/tweetlens/internal/proxy"
	"github.com/kalambet/tweetlens/internal/session"
	"github.com/kalambet/tweetlens/internal/xapi"
)

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	store    *cache.Store
	fetcher  *fetcher.Fetcher
	sessions *session.Controller
	kind     analyzer.Kind
}

// loadConfig reads the configuration, applies --backend and sets up logging.
func loadConfig() (config.Config, analyzer.Kind, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, "", err
	}
	setupLogging(cfg.Log.Level)

	name := cfg.Analysis.Backend
	if backendFlag != "" {
		name = backendFlag
	}
	kind, err := analyzer.ParseKind(name)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, kind, nil
}

// newStore opens the cache with the configured directory and TTL.
func newStore(cfg config.Config) *cache.Store {
	return cache.New(cfg.Cache.Dir, cache.WithTTL(config.Duration(cfg.Cache.TTL)))
}

// newFetcher builds a fetcher on the X API. Media downloads are enabled by
// media.download.
func newFetcher(cfg config.Config, store *cache.Store) *fetcher.Fetcher {
	source := xapi.NewWithBaseURL(cfg.Secrets.XBearerToken, cfg.X.BaseURL, config.Duration(cfg.X.Timeout))

	opts := []fetcher.Option{fetcher.WithLimit(cfg.X.MaxResults)}
	if cfg.Media.Download {
		opts = append(opts, fetcher.WithDownloader(media.NewDownloader(store.MediaDir(), config.Duration(cfg.Media.Timeout))))
	}
	return fetcher.New(source, store, opts...)
}

// newApp wires config, cache, fetcher and the selected backend into a
// session controller. It fails with config.ErrCredentialMissing before any
// network call when a required secret is absent.
func newApp(ctx context.Context) (*app, error) {
	cfg, kind, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.RequireCredentials(cfg, string(kind)); err != nil {
		return nil, err
	}

	store := newStore(cfg)
	f := newFetcher(cfg, store)

	backend, err := buildBackend(ctx, cfg, kind)
	if err != nil {
		return nil, err
	}
	slog.Debug("backend ready", "backend", kind, "cache_dir", store.Dir())

	return &app{
		cfg:      cfg,
		store:    store,
		fetcher:  f,
		sessions: session.New(f, store, backend),
		kind:     kind,
	}, nil
}

func buildBackend(ctx context.Context, cfg config.Config, kind analyzer.Kind) (analyzer.Backend, error) {
	loader := media.FileLoader{}

	switch kind {
	case analyzer.KindGemini:
		client := gemini.NewWithBaseURL(cfg.Secrets.GeminiAPIKey, cfg.Gemini.BaseURL, config.Duration(cfg.Gemini.Timeout))
		gen := gemini.GenerationConfig{
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			Temperature:     cfg.Gemini.Temperature,
			TopP:            cfg.Gemini.TopP,
			TopK:            cfg.Gemini.TopK,
		}
		return analyzer.NewGemini(client, cfg.Gemini.Model, gen, loader), nil

	case analyzer.KindOpenRouter:
		client := proxy.NewClientWithBaseURL(cfg.Secrets.OpenRouterAPIKey, cfg.OpenRouter.BaseURL, config.Duration(cfg.OpenRouter.Timeout))
		return analyzer.NewChat(client, analyzer.ChatSettings{
			Model:       cfg.OpenRouter.Model,
			Temperature: cfg.OpenRouter.Temperature,
			MaxTokens:   cfg.OpenRouter.MaxTokens,
		}), nil

	case analyzer.KindOllama:
		client := ollama.NewWithTimeout(cfg.Ollama.BaseURL, config.Duration(cfg.Ollama.Timeout))
		if err := ensureOllamaModel(ctx, client, cfg.Ollama.Model); err != nil {
			return nil, err
		}
		// Sampling mirrors the Gemini generation config.
		opts := ollama.Options{
			NumPredict:  cfg.Gemini.MaxOutputTokens,
			Temperature: cfg.Gemini.Temperature,
			TopP:        cfg.Gemini.TopP,
			TopK:        cfg.Gemini.TopK,
		}
		return analyzer.NewLocal(client, cfg.Ollama.Model, opts, loader), nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

// ensureOllamaModel pulls the model when missing, drawing a byte progress
// bar from the streamed pull status.
func ensureOllamaModel(ctx context.Context, client *ollama.Client, model string) error {
	var bar *progressbar.ProgressBar
	err := ollama.EnsureModel(ctx, client, model, func(p ollama.PullProgress) {
		if bar == nil {
			printStep("Pulling %s", model)
			bar = progressbar.NewOptions64(-1,
				progressbar.OptionSetDescription(model),
				progressbar.OptionSetWriter(errOut),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		}
		if p.Total > 0 {
			bar.ChangeMax64(p.Total)
			_ = bar.Set64(p.Completed)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}
	if bar != nil {
		printSuccess("Model %s ready", model)
	}
	return nil
}
