package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/tweetlens/internal/composer"
	"github.com/kalambet/tweetlens/internal/media"
	"github.com/kalambet/tweetlens/internal/ollama"
)

// DefaultOllamaModel is a vision model available from the Ollama library.
const DefaultOllamaModel = "llava"

// OllamaClient is the subset of *ollama.Client the backend uses.
type OllamaClient interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error)
}

// LocalBackend runs the multi-modal prompt against a local Ollama model.
type LocalBackend struct {
	client  OllamaClient
	model   string
	options ollama.Options
	loader  media.Loader
	logger  *slog.Logger
}

// NewLocal creates a backend for a local vision model.
func NewLocal(client OllamaClient, model string, opts ollama.Options, loader media.Loader) *LocalBackend {
	if model == "" {
		model = DefaultOllamaModel
	}
	if loader == nil {
		loader = media.FileLoader{}
	}
	return &LocalBackend{client: client, model: model, options: opts, loader: loader, logger: slog.Default()}
}

func (b *LocalBackend) Name() Kind { return KindOllama }

// Analyze sends the prompt text with every loadable image attached to one
// user message.
func (b *LocalBackend) Analyze(ctx context.Context, req Request) (Result, error) {
	prompt := composer.BuildMultiModal(req.Username, req.Question, req.Posts, b.loader)
	skipped := logSkipped(b.logger, req, prompt.Skipped)

	msg := ollama.Message{Role: "user", Content: prompt.Text}
	for _, img := range prompt.Images {
		msg.Images = append(msg.Images, img.Base64())
	}

	b.logger.Debug("sending analysis",
		"request_id", req.ID, "backend", KindOllama, "model", b.model, "images", len(msg.Images))

	opts := b.options
	text, err := b.client.Chat(ctx, b.model, []ollama.Message{msg}, &opts)
	if err != nil {
		return Result{}, wrap(KindOllama, err, ollamaStatus)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, &BackendError{Backend: KindOllama, Err: fmt.Errorf("empty response from %s", b.model)}
	}

	return Result{
		RequestID:  req.ID,
		Backend:    KindOllama,
		Model:      b.model,
		Text:       text,
		ImagesUsed: len(msg.Images),
		Skipped:    skipped,
	}, nil
}

func ollamaStatus(err error) (int, string, bool) {
	var se *ollama.StatusError
	if errors.As(err, &se) {
		return se.Status, se.Body, true
	}
	return 0, "", false
}
