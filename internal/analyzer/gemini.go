package analyzer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/tweetlens/internal/composer"
	"github.com/kalambet/tweetlens/internal/gemini"
	"github.com/kalambet/tweetlens/internal/media"
)

// GeminiClient is the subset of *gemini.Client the backend uses.
type GeminiClient interface {
	GenerateContent(ctx context.Context, model string, req gemini.GenerateRequest) (string, error)
}

// GeminiBackend sends the text block and every loadable image in a single
// generateContent call.
type GeminiBackend struct {
	client GeminiClient
	model  string
	config gemini.GenerationConfig
	loader media.Loader
	logger *slog.Logger
}

// NewGemini creates a multi-modal backend. The generation config is fixed
// for the lifetime of the backend.
func NewGemini(client GeminiClient, model string, cfg gemini.GenerationConfig, loader media.Loader) *GeminiBackend {
	if model == "" {
		model = gemini.DefaultModel
	}
	if loader == nil {
		loader = media.FileLoader{}
	}
	return &GeminiBackend{
		client: client,
		model:  model,
		config: cfg,
		loader: loader,
		logger: slog.Default(),
	}
}

func (b *GeminiBackend) Name() Kind { return KindGemini }

// Analyze builds the multi-modal prompt and sends it.
func (b *GeminiBackend) Analyze(ctx context.Context, req Request) (Result, error) {
	prompt := composer.BuildMultiModal(req.Username, req.Question, req.Posts, b.loader)
	skipped := logSkipped(b.logger, req, prompt.Skipped)

	parts := make([]gemini.Part, 0, 1+len(prompt.Images))
	parts = append(parts, gemini.TextPart(prompt.Text))
	for _, img := range prompt.Images {
		parts = append(parts, gemini.ImagePart(img.MIMEType, img.Base64()))
	}

	cfg := b.config
	b.logger.Debug("sending analysis",
		"request_id", req.ID, "backend", KindGemini, "model", b.model,
		"images", len(prompt.Images), "est_tokens", composer.EstimateTokens(prompt.Text))

	text, err := b.client.GenerateContent(ctx, b.model, gemini.GenerateRequest{
		Contents:         []gemini.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &cfg,
	})
	if err != nil {
		return Result{}, wrap(KindGemini, err, geminiStatus)
	}

	return Result{
		RequestID:  req.ID,
		Backend:    KindGemini,
		Model:      b.model,
		Text:       text,
		ImagesUsed: len(prompt.Images),
		Skipped:    skipped,
	}, nil
}

func geminiStatus(err error) (int, string, bool) {
	var se *gemini.StatusError
	if errors.As(err, &se) {
		return se.Status, se.Body, true
	}
	return 0, "", false
}

func logSkipped(logger *slog.Logger, req Request, skipped []composer.SkippedImage) []string {
	if len(skipped) == 0 {
		return nil
	}
	paths := make([]string, len(skipped))
	for i, s := range skipped {
		logger.Warn("skipping image", "request_id", req.ID, "path", s.Path, "reason", s.Reason)
		paths[i] = s.Path
	}
	return paths
}
