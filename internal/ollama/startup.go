package ollama

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotRunning is returned when the local server does not answer.
var ErrNotRunning = errors.New("Ollama is not running. Start it with: ollama serve")

// EnsureModel checks that Ollama is up and that model is present, pulling it
// when missing. onProgress receives the pull progress lines and may be nil.
func EnsureModel(ctx context.Context, c *Client, model string, onProgress func(PullProgress)) error {
	if !c.IsRunning(ctx) {
		return ErrNotRunning
	}
	if c.HasModel(ctx, model) {
		return nil
	}
	if err := c.PullModel(ctx, model, onProgress); err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	return nil
}
