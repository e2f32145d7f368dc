package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/tweetlens/internal/gemini"
	"github.com/kalambet/tweetlens/internal/media"
	"github.com/kalambet/tweetlens/internal/ollama"
	"github.com/kalambet/tweetlens/internal/post"
	"github.com/kalambet/tweetlens/internal/proxy"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"gemini", "OpenRouter", " ollama "} {
		if _, err := ParseKind(in); err != nil {
			t.Errorf("ParseKind(%q): %v", in, err)
		}
	}
	if _, err := ParseKind("claude"); err == nil {
		t.Error("ParseKind(claude) succeeded")
	}
}

func TestGemini_SkipsDeletedImage(t *testing.T) {
	dir := t.TempDir()
	a, b, gone := filepath.Join(dir, "1.jpg"), filepath.Join(dir, "2.jpg"), filepath.Join(dir, "3.jpg")
	writePNG(t, a)
	writePNG(t, b)

	var got gemini.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Two photos of cats."}]}}]}`)
	}))
	defer srv.Close()

	backend := NewGemini(gemini.NewWithBaseURL("k", srv.URL, 0), "", gemini.DefaultGenerationConfig(), media.FileLoader{})
	req := NewRequest("jack", "What do the photos show?", []post.Post{
		{ID: "1", Text: "one", Media: []string{a}},
		{ID: "2", Text: "two", Media: []string{b, gone}},
	})

	res, err := backend.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ImagesUsed != 2 {
		t.Errorf("ImagesUsed = %d, want 2", res.ImagesUsed)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != gone {
		t.Errorf("Skipped = %v", res.Skipped)
	}
	if res.RequestID != req.ID || res.Backend != KindGemini || res.Model != gemini.DefaultModel {
		t.Errorf("result metadata = %+v", res)
	}
	if parts := got.Contents[0].Parts; len(parts) != 3 {
		t.Errorf("sent %d parts, want text + 2 images", len(parts))
	}
}

func TestGemini_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "forbidden")
	}))
	defer srv.Close()

	backend := NewGemini(gemini.NewWithBaseURL("k", srv.URL, 0), "", gemini.DefaultGenerationConfig(), nil)
	_, err := backend.Analyze(context.Background(), NewRequest("jack", "q", nil))

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BackendError", err)
	}
	if be.Status != http.StatusForbidden || be.Body != "forbidden" || be.Backend != KindGemini {
		t.Errorf("BackendError = %+v", be)
	}
}

func TestChat_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer srv.Close()

	backend := NewChat(proxy.NewClientWithBaseURL("k", srv.URL, 0), DefaultChatSettings())
	_, err := backend.Analyze(context.Background(), NewRequest("jack", "q", nil))

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BackendError", err)
	}
	if be.Status != 429 || be.Body != "rate limited" {
		t.Errorf("BackendError = %+v, want status 429 body %q", be, "rate limited")
	}
}

func TestChat_EmptyPostsCallsOnce(t *testing.T) {
	var calls atomic.Int32
	var got proxy.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"No tweets to analyze."}}]}`)
	}))
	defer srv.Close()

	backend := NewChat(proxy.NewClientWithBaseURL("k", srv.URL, 0), DefaultChatSettings())
	res, err := backend.Analyze(context.Background(), NewRequest("quiet", "anything?", []post.Post{}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", calls.Load())
	}
	if res.Text != "No tweets to analyze." {
		t.Errorf("Text = %q", res.Text)
	}
	if got.Temperature != 0.7 || got.MaxTokens != 1000 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
}

func TestChat_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	backend := NewChat(proxy.NewClientWithBaseURL("k", srv.URL, time.Second), DefaultChatSettings())
	_, err := backend.Analyze(context.Background(), NewRequest("jack", "q", nil))
	if !IsBackendError(err) {
		t.Fatalf("err = %v, want *BackendError", err)
	}
}

type fakeOllama struct {
	messages []ollama.Message
	opts     *ollama.Options
	reply    string
	err      error
}

func (f *fakeOllama) Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error) {
	f.messages = messages
	f.opts = opts
	return f.reply, f.err
}

func TestLocal_AttachesImages(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "1.jpg")
	writePNG(t, img)

	fake := &fakeOllama{reply: "A screenshot of code."}
	opts := ollama.Options{NumPredict: 2048, Temperature: 0.7, TopP: 0.8, TopK: 40}
	backend := NewLocal(fake, "", opts, nil)

	res, err := backend.Analyze(context.Background(), NewRequest("jack", "q", []post.Post{{ID: "1", Media: []string{img}}}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ImagesUsed != 1 || res.Model != DefaultOllamaModel {
		t.Errorf("result = %+v", res)
	}
	if len(fake.messages) != 1 || len(fake.messages[0].Images) != 1 {
		t.Fatalf("messages = %+v", fake.messages)
	}
	if fake.opts == nil || *fake.opts != opts {
		t.Errorf("options = %+v", fake.opts)
	}
}

func TestLocal_Errors(t *testing.T) {
	tests := []struct {
		name       string
		fake       *fakeOllama
		wantStatus int
	}{
		{"status", &fakeOllama{err: &ollama.StatusError{Status: 404, Body: "model not found"}}, 404},
		{"empty", &fakeOllama{reply: "   "}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewLocal(tt.fake, "llava", ollama.Options{}, nil)
			_, err := backend.Analyze(context.Background(), NewRequest("jack", "q", nil))
			var be *BackendError
			if !errors.As(err, &be) {
				t.Fatalf("err = %v, want *BackendError", err)
			}
			if be.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", be.Status, tt.wantStatus)
			}
		})
	}
}
