package analyzer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/tweetlens/internal/composer"
	"github.com/kalambet/tweetlens/internal/proxy"
)

// ChatClient is the subset of *proxy.Client the backend uses.
type ChatClient interface {
	Complete(ctx context.Context, req proxy.ChatRequest) (string, error)
}

// ChatSettings are the sampling parameters of a chat completion.
type ChatSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultChatSettings returns the OpenRouter defaults.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{Model: proxy.DefaultModel, Temperature: 0.7, MaxTokens: 1000}
}

// ChatBackend sends posts as JSON text through an OpenAI-compatible chat
// completion endpoint. Images are not sent.
type ChatBackend struct {
	client   ChatClient
	settings ChatSettings
	logger   *slog.Logger
}

// NewChat creates a chat-completion backend.
func NewChat(client ChatClient, settings ChatSettings) *ChatBackend {
	if settings.Model == "" {
		settings.Model = proxy.DefaultModel
	}
	return &ChatBackend{client: client, settings: settings, logger: slog.Default()}
}

func (b *ChatBackend) Name() Kind { return KindOpenRouter }

// Analyze builds the chat prompt and returns the first choice's content.
func (b *ChatBackend) Analyze(ctx context.Context, req Request) (Result, error) {
	prompt, err := composer.BuildChat(req.Username, req.Question, req.Posts)
	if err != nil {
		return Result{}, &BackendError{Backend: KindOpenRouter, Err: err}
	}

	b.logger.Debug("sending analysis",
		"request_id", req.ID, "backend", KindOpenRouter, "model", b.settings.Model,
		"est_tokens", composer.EstimateTokens(prompt.System)+composer.EstimateTokens(prompt.User))

	text, err := b.client.Complete(ctx, proxy.ChatRequest{
		Model: b.settings.Model,
		Messages: []proxy.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: b.settings.Temperature,
		MaxTokens:   b.settings.MaxTokens,
	})
	if err != nil {
		return Result{}, wrap(KindOpenRouter, err, openRouterStatus)
	}

	return Result{
		RequestID: req.ID,
		Backend:   KindOpenRouter,
		Model:     b.settings.Model,
		Text:      text,
	}, nil
}

func openRouterStatus(err error) (int, string, bool) {
	var se *proxy.StatusError
	if errors.As(err, &se) {
		return se.Status, se.Body, true
	}
	return 0, "", false
}
