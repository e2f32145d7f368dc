// Package fetcher loads a user's recent posts, from the local cache when a
// fresh snapshot exists and from the X API otherwise.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/post"
	"github.com/kalambet/tweetlens/internal/xapi"
)

var (
	// ErrUserNotFound is returned when the API has no user for the handle.
	ErrUserNotFound = errors.New("user not found")
	// ErrFetchFailed wraps any API or network failure during a fetch.
	ErrFetchFailed = errors.New("fetch failed")
)

// Source abstracts the timeline API.
type Source interface {
	UserID(ctx context.Context, username string) (string, error)
	RecentTweets(ctx context.Context, userID string, limit int) (*xapi.Timeline, error)
}

// Cache abstracts snapshot persistence.
type Cache interface {
	Load(username string) (*cache.Snapshot, error)
	Save(username string, posts []post.Post) (*cache.Snapshot, error)
}

// Downloader saves one remote media file under name and returns its path.
type Downloader interface {
	Download(ctx context.Context, url, name string) (string, error)
}

// Result is the outcome of a successful Fetch.
type Result struct {
	Username  string
	Posts     []post.Post
	FetchedAt time.Time
	FromCache bool
	// Warnings lists non-fatal problems such as failed media downloads.
	Warnings []string
}

// Fetcher coordinates cache, API and media downloads.
type Fetcher struct {
	source Source
	cache  Cache
	media  Downloader
	limit  int
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDownloader enables media downloads. Without one, posts are fetched
// text-only and Media stays empty.
func WithDownloader(d Downloader) Option {
	return func(f *Fetcher) { f.media = d }
}

// WithLimit sets how many recent posts are requested.
func WithLimit(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher reading from source and persisting into c.
func New(source Source, c Cache, opts ...Option) *Fetcher {
	f := &Fetcher{
		source: source,
		cache:  c,
		limit:  xapi.DefaultResults,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the recent posts of username. Unless force is set, a fresh
// cached snapshot is returned without touching the network. On failure the
// existing snapshot is left as it was.
func (f *Fetcher) Fetch(ctx context.Context, username string, force bool) (*Result, error) {
	username = NormalizeUsername(username)
	if !cache.ValidUsername(username) {
		return nil, fmt.Errorf("%w: %q", cache.ErrInvalidUsername, username)
	}

	if !force {
		snap, err := f.cache.Load(username)
		switch {
		case err == nil:
			f.logger.Debug("cache hit", "username", username, "fetched_at", snap.FetchedAt)
			return &Result{
				Username:  username,
				Posts:     snap.Posts,
				FetchedAt: snap.FetchedAt,
				FromCache: true,
			}, nil
		case errors.Is(err, cache.ErrCorrupt):
			f.logger.Warn("ignoring corrupt cache", "username", username, "error", err)
		default:
			f.logger.Debug("cache unusable", "username", username, "error", err)
		}
	}

	userID, err := f.source.UserID(ctx, username)
	if err != nil {
		if errors.Is(err, xapi.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: @%s: %w", ErrUserNotFound, username, err)
		}
		return nil, fmt.Errorf("%w: resolving @%s: %w", ErrFetchFailed, username, err)
	}

	timeline, err := f.source.RecentTweets(ctx, userID, f.limit)
	if err != nil {
		return nil, fmt.Errorf("%w: reading timeline of @%s: %w", ErrFetchFailed, username, err)
	}

	res := &Result{Username: username}
	posts := make([]post.Post, 0, len(timeline.Tweets))
	for _, tw := range timeline.Tweets {
		p := post.Post{
			ID:        post.ID(tw.ID),
			Text:      tw.Text,
			CreatedAt: tw.CreatedAt,
			Metrics: post.Metrics{
				LikeCount:    tw.PublicMetrics.LikeCount,
				ReplyCount:   tw.PublicMetrics.ReplyCount,
				RetweetCount: tw.PublicMetrics.RetweetCount,
				QuoteCount:   tw.PublicMetrics.QuoteCount,
			},
			Media: []string{},
		}
		if f.media != nil && tw.Attachments != nil {
			p.Media, res.Warnings = f.downloadMedia(ctx, tw, timeline.Media, res.Warnings)
		}
		posts = append(posts, p)
	}
	// A cancelled fetch would otherwise cache posts with their media stripped.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: @%s: %w", ErrFetchFailed, username, err)
	}
	posts = post.Dedupe(posts)

	res.Posts = posts
	res.FetchedAt = time.Now()
	snap, err := f.cache.Save(username, posts)
	if err != nil {
		f.logger.Warn("saving snapshot failed", "username", username, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not update cache: %v", err))
	} else {
		res.FetchedAt = snap.FetchedAt
	}

	f.logger.Info("fetched posts", "username", username, "count", len(posts), "warnings", len(res.Warnings))
	return res, nil
}

// downloadMedia saves each attachment of tw. The first file is <id>.jpg and
// later ones <id>_<n>.jpg. Failures are recorded as warnings and skipped.
func (f *Fetcher) downloadMedia(ctx context.Context, tw xapi.Tweet, lookup map[string]xapi.Media, warnings []string) ([]string, []string) {
	paths := []string{}
	if !numericID(tw.ID) {
		f.logger.Warn("skipping media of post with unexpected id", "post_id", tw.ID)
		return paths, append(warnings, fmt.Sprintf("post %q: unexpected id, media skipped", tw.ID))
	}
	n := 0
	for _, key := range tw.Attachments.MediaKeys {
		m, ok := lookup[key]
		if !ok || m.DirectURL() == "" {
			warnings = append(warnings, fmt.Sprintf("post %s: media %s has no URL", tw.ID, key))
			continue
		}

		name := tw.ID + ".jpg"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.jpg", tw.ID, n)
		}
		n++

		path, err := f.media.Download(ctx, m.DirectURL(), name)
		if err != nil {
			f.logger.Warn("media download failed", "post_id", tw.ID, "error", err)
			warnings = append(warnings, fmt.Sprintf("post %s: %v", tw.ID, err))
			continue
		}
		paths = append(paths, path)
	}
	return paths, warnings
}

// NormalizeUsername trims whitespace and a leading "@" and lowercases the
// handle. X handles are case-insensitive, so "Jack" and "jack" share one
// snapshot.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "@"))
}

// numericID reports whether id is a non-empty run of ASCII digits. Post IDs
// name media files, so anything else is refused.
func numericID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
