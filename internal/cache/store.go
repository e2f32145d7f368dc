// Package cache keeps one JSON snapshot of fetched posts per username.
//
// A snapshot file lives at <dir>/<username>_tweets.json:
//
//	{
//	  "timestamp": "2024-07-15T10:04:05.123456789+02:00",
//	  "tweets": [...]
//	}
//
// Snapshots are valid for a fixed TTL from their timestamp. Downloaded media
// for the snapshot's posts lives under <dir>/media.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/tweetlens/internal/post"
)

// DefaultTTL is how long a snapshot stays fresh.
const DefaultTTL = 24 * time.Hour

var (
	// ErrMiss means no snapshot exists for the username.
	ErrMiss = errors.New("cache miss")
	// ErrExpired means the snapshot is older than the TTL.
	ErrExpired = errors.New("cache expired")
	// ErrCorrupt means the snapshot file exists but cannot be decoded.
	ErrCorrupt = errors.New("cache file corrupt")
	// ErrInvalidUsername is returned for handles that cannot be used as a key.
	ErrInvalidUsername = errors.New("invalid username")
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// ValidUsername reports whether name is a well-formed X handle (without "@").
func ValidUsername(name string) bool {
	return usernameRe.MatchString(name)
}

// Snapshot is one cached fetch result.
type Snapshot struct {
	Username  string
	FetchedAt time.Time
	Posts     []post.Post
}

// filePayload is the on-disk shape. The reader also accepts the alternate
// "cached_at" / "posts" keys.
type filePayload struct {
	Timestamp string      `json:"timestamp,omitempty"`
	CachedAt  string      `json:"cached_at,omitempty"`
	Tweets    []post.Post `json:"tweets"`
	Posts     []post.Post `json:"posts,omitempty"`
}

// Store reads and writes snapshots under a single directory.
type Store struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	rename func(oldpath, newpath string) error
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for best-effort cleanup warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store rooted at dir. The directory is created lazily on Save.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		ttl:    DefaultTTL,
		now:    time.Now,
		rename: os.Rename,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the cache root.
func (s *Store) Dir() string { return s.dir }

// MediaDir returns the directory media files are downloaded into.
func (s *Store) MediaDir() string { return filepath.Join(s.dir, "media") }

// TTL returns the freshness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Path returns the snapshot file path for username.
func (s *Store) Path(username string) string {
	return filepath.Join(s.dir, username+"_tweets.json")
}

// Load returns the fresh snapshot for username. The returned error is
// ErrMiss, ErrCorrupt or ErrExpired (all meaning "absent"), or
// ErrInvalidUsername.
func (s *Store) Load(username string) (*Snapshot, error) {
	snap, err := s.read(username)
	if err != nil {
		return nil, err
	}
	if age := s.now().Sub(snap.FetchedAt); age >= s.ttl {
		return nil, fmt.Errorf("%w: snapshot for %s is %s old", ErrExpired, username, age.Truncate(time.Second))
	}
	return snap, nil
}

// Peek returns the snapshot for username regardless of age.
func (s *Store) Peek(username string) (*Snapshot, error) {
	return s.read(username)
}

func (s *Store) read(username string) (*Snapshot, error) {
	if !ValidUsername(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	data, err := os.ReadFile(s.Path(username))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	stamp := payload.Timestamp
	if stamp == "" {
		stamp = payload.CachedAt
	}
	if stamp == "" {
		return nil, fmt.Errorf("%w: missing timestamp", ErrCorrupt)
	}
	fetchedAt, err := parseTimestamp(stamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	posts := payload.Tweets
	if posts == nil {
		posts = payload.Posts
	}
	if posts == nil {
		posts = []post.Post{}
	}
	for i := range posts {
		if posts[i].Media == nil {
			posts[i].Media = []string{}
		}
	}

	return &Snapshot{Username: username, FetchedAt: fetchedAt, Posts: posts}, nil
}

// Save replaces the snapshot for username with posts stamped at the current
// time. The file is written to a temp path and renamed, so a failed write
// never clobbers the previous snapshot.
func (s *Store) Save(username string, posts []post.Post) (*Snapshot, error) {
	if !ValidUsername(username) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}

	fetchedAt := s.now()
	// Keep timestamps non-decreasing even if the wall clock stepped back.
	if prev, err := s.read(username); err == nil && prev.FetchedAt.After(fetchedAt) {
		fetchedAt = prev.FetchedAt
	}

	if posts == nil {
		posts = []post.Post{}
	}
	data, err := json.MarshalIndent(filePayload{
		Timestamp: fetchedAt.Format(time.RFC3339Nano),
		Tweets:    posts,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, username+"_tweets.*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing snapshot: %w", err)
	}
	if err := s.rename(tmpPath, s.Path(username)); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("replacing snapshot: %w", err)
	}

	return &Snapshot{Username: username, FetchedAt: fetchedAt, Posts: posts}, nil
}

// Clear removes the snapshot for username and, best effort, the media files
// it references. It reports whether a snapshot file was removed.
func (s *Store) Clear(username string) bool {
	if !ValidUsername(username) {
		return false
	}

	var media []string
	if snap, err := s.read(username); err == nil {
		media = post.MediaPaths(snap.Posts)
	}

	if err := os.Remove(s.Path(username)); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("removing cache file", "username", username, "error", err)
		}
		return false
	}

	for _, p := range media {
		if !s.ownsMedia(p) {
			s.logger.Warn("skipping media outside cache dir", "path", p)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("removing media file", "path", p, "error", err)
		}
	}
	return true
}

func (s *Store) ownsMedia(path string) bool {
	rel, err := filepath.Rel(s.MediaDir(), path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// naiveISO covers timestamps written without a zone offset, which are read
// as local time.
var naiveISO = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveISO {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
