// Package session holds the active user and posts and routes questions to
// the configured analysis backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/tweetlens/internal/analyzer"
	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/fetcher"
	"github.com/kalambet/tweetlens/internal/post"
)

var (
	// ErrNoUser is returned by operations that need a selected user.
	ErrNoUser = errors.New("no user selected")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Fetcher loads posts for a user.
type Fetcher interface {
	Fetch(ctx context.Context, username string, force bool) (*fetcher.Result, error)
}

// CacheClearer removes a user's snapshot.
type CacheClearer interface {
	Clear(username string) bool
}

// Session is the state of one selected user. It is replaced wholesale on
// switch or refresh.
type Session struct {
	Username  string
	Posts     []post.Post
	FetchedAt time.Time
	FromCache bool
	Warnings  []string
}

// Controller serializes user actions against a fetcher, the cache and one
// backend. It is safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	fetcher Fetcher
	cache   CacheClearer
	backend analyzer.Backend
	current *Session
	logger  *slog.Logger
}

// New creates a Controller with no user selected.
func New(f Fetcher, c CacheClearer, backend analyzer.Backend) *Controller {
	return &Controller{fetcher: f, cache: c, backend: backend, logger: slog.Default()}
}

// Backend returns the backend questions are sent to.
func (c *Controller) Backend() analyzer.Backend { return c.backend }

// Current returns a copy of the active session, or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	s := *c.current
	return &s
}

// Select makes username the active user, loading posts from the cache or the
// API. Any previous session is dropped even when loading fails.
func (c *Controller) Select(ctx context.Context, username string) (*Session, error) {
	username, err := checkUsername(username)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
	return c.loadLocked(ctx, username, false)
}

// Load makes username the active user. Without refresh an already active user
// is kept as is; with refresh the posts are fetched from the API in a single
// call. A failed refresh of the active user keeps its current posts.
func (c *Controller) Load(ctx context.Context, username string, refresh bool) (*Session, error) {
	username, err := checkUsername(username)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, username, refresh)
}

// Refresh re-fetches the active user's posts bypassing the cache. On failure
// the current posts stay in place.
func (c *Controller) Refresh(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, ErrNoUser
	}
	return c.loadLocked(ctx, c.current.Username, true)
}

// Clear deletes the active user's snapshot and media. Posts already loaded
// stay usable until the next refresh or switch.
func (c *Controller) Clear() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return false, ErrNoUser
	}
	return c.cache.Clear(c.current.Username), nil
}

// Ask sends question about the active user's posts to the backend. The
// backend is called exactly once, also when there are no posts.
func (c *Controller) Ask(ctx context.Context, question string) (analyzer.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return analyzer.Result{}, ErrEmptyQuestion
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return analyzer.Result{}, ErrNoUser
	}
	return c.askLocked(ctx, question)
}

// AskAbout makes username the active user if it is not already and asks
// question about its posts. Both steps run under one lock hold, so concurrent
// callers asking about different users never see each other's posts.
func (c *Controller) AskAbout(ctx context.Context, username, question string) (analyzer.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return analyzer.Result{}, ErrEmptyQuestion
	}
	username, err := checkUsername(username)
	if err != nil {
		return analyzer.Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.loadLocked(ctx, username, false); err != nil {
		return analyzer.Result{}, err
	}
	return c.askLocked(ctx, question)
}

// loadLocked must be called with c.mu held.
func (c *Controller) loadLocked(ctx context.Context, username string, force bool) (*Session, error) {
	same := c.current != nil && c.current.Username == username
	if same && !force {
		s := *c.current
		return &s, nil
	}
	if !same {
		c.current = nil
	}

	res, err := c.fetcher.Fetch(ctx, username, force)
	if err != nil {
		return nil, err
	}
	c.current = fromResult(res)
	s := *c.current
	return &s, nil
}

// askLocked must be called with c.mu held and a user selected.
func (c *Controller) askLocked(ctx context.Context, question string) (analyzer.Result, error) {
	req := analyzer.NewRequest(c.current.Username, question, c.current.Posts)
	c.logger.Info("analyzing",
		"request_id", req.ID, "username", req.Username, "backend", c.backend.Name(), "posts", len(req.Posts))

	res, err := c.backend.Analyze(ctx, req)
	if err != nil {
		c.logger.Error("analysis failed", "request_id", req.ID, "error", err)
		return analyzer.Result{}, err
	}
	return res, nil
}

// Close drops the active session.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func fromResult(res *fetcher.Result) *Session {
	posts := res.Posts
	if posts == nil {
		posts = []post.Post{}
	}
	return &Session{
		Username:  res.Username,
		Posts:     posts,
		FetchedAt: res.FetchedAt,
		FromCache: res.FromCache,
		Warnings:  res.Warnings,
	}
}

func checkUsername(username string) (string, error) {
	username = fetcher.NormalizeUsername(username)
	if !cache.ValidUsername(username) {
		return "", fmt.Errorf("%w: %q", cache.ErrInvalidUsername, username)
	}
	return username, nil
}
