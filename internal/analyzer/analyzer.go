// Package analyzer sends a user's posts and a question to an LLM backend and
// returns its answer.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kalambet/tweetlens/internal/post"
)

// Kind names a backend implementation.
type Kind string

const (
	KindGemini     Kind = "gemini"
	KindOpenRouter Kind = "openrouter"
	KindOllama     Kind = "ollama"
)

// Kinds lists every supported backend.
var Kinds = []Kind{KindGemini, KindOpenRouter, KindOllama}

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want gemini, openrouter or ollama)", s)
}

// Request is one question about one user's posts. It is built fresh for
// every question and never cached.
type Request struct {
	ID       uuid.UUID
	Username string
	Posts    []post.Post
	Question string
}

// NewRequest stamps a new request id.
func NewRequest(username, question string, posts []post.Post) Request {
	return Request{ID: uuid.New(), Username: username, Posts: posts, Question: question}
}

// Result is a backend's answer.
type Result struct {
	RequestID  uuid.UUID
	Backend    Kind
	Model      string
	Text       string
	ImagesUsed int
	// Skipped lists media paths that could not be attached.
	Skipped []string
}

// Backend answers questions about posts. Implementations are stateless per
// call and safe to reuse across sessions.
type Backend interface {
	Name() Kind
	Analyze(ctx context.Context, req Request) (Result, error)
}

// BackendError is the only error type Analyze returns. Status and Body are
// set when the provider answered with a non-success HTTP status.
type BackendError struct {
	Backend Kind
	Status  int
	Body    string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// wrap converts a client error into a *BackendError. status extracts the
// HTTP status and body from the client's own error type, if present.
func wrap(kind Kind, err error, status func(error) (int, string, bool)) *BackendError {
	be := &BackendError{Backend: kind, Err: err}
	if code, body, ok := status(err); ok {
		be.Status = code
		be.Body = body
	}
	return be
}

// IsBackendError reports whether err is a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
