package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/tweetlens/internal/post"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func samplePosts() []post.Post {
	return []post.Post{
		{
			ID:        "1790000000000000002",
			Text:      "shipping the new release today",
			CreatedAt: time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC),
			Metrics:   post.Metrics{LikeCount: 12, ReplyCount: 3, RetweetCount: 4},
			Media:     []string{},
		},
		{
			ID:        "1790000000000000001",
			Text:      "",
			CreatedAt: time.Date(2024, 7, 14, 18, 0, 0, 0, time.UTC),
			Metrics:   post.Metrics{LikeCount: 0},
			Media:     []string{"/tmp/media/1790000000000000001.jpg"},
		},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)}
	s := New(t.TempDir(), WithClock(clock.now))

	want := samplePosts()
	if _, err := s.Save("jack", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock.t = clock.t.Add(23 * time.Hour)
	snap, err := s.Load("jack")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(snap.Posts, want) {
		t.Errorf("posts = %+v, want %+v", snap.Posts, want)
	}
	if !snap.FetchedAt.Equal(time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("FetchedAt = %v", snap.FetchedAt)
	}
}

func TestLoad_Miss(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Load("nobody")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
}

func TestLoad_ExpiredAtExactlyTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)}
	s := New(t.TempDir(), WithClock(clock.now))
	if _, err := s.Save("jack", samplePosts()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock.t = clock.t.Add(DefaultTTL)
	_, err := s.Load("jack")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}

	// Peek still sees the stale file.
	if _, err := s.Peek("jack"); err != nil {
		t.Errorf("Peek: %v", err)
	}
}

func TestLoad_CorruptIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := os.WriteFile(s.Path("jack"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load("jack")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestLoad_MissingTimestampIsCorrupt(t *testing.T) {
	s := New(t.TempDir())
	if err := os.WriteFile(s.Path("jack"), []byte(`{"tweets":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("jack"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestLoad_AlternateKeysAndNaiveTimestamp(t *testing.T) {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.Local)
	s := New(t.TempDir(), WithClock(func() time.Time { return now }))

	content := `{
  "cached_at": "2024-07-15T10:04:05.123456",
  "posts": [{"id": 42, "text": "hi", "created_at": "2024-07-15T09:00:00Z",
             "metrics": {"like_count": 1, "reply_count": 0, "retweet_count": 2}}]
}`
	if err := os.WriteFile(s.Path("jack"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Load("jack")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Posts) != 1 || snap.Posts[0].ID != "42" {
		t.Fatalf("posts = %+v", snap.Posts)
	}
	if snap.Posts[0].Media == nil {
		t.Error("Media should be normalized to an empty slice")
	}
	want := time.Date(2024, 7, 15, 10, 4, 5, 123456000, time.Local)
	if !snap.FetchedAt.Equal(want) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, want)
	}
}

func TestSave_TimestampNeverGoesBackwards(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)}
	s := New(t.TempDir(), WithClock(clock.now))
	first, err := s.Save("jack", nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock.t = clock.t.Add(-time.Hour)
	second, err := s.Save("jack", samplePosts())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.FetchedAt.Before(first.FetchedAt) {
		t.Errorf("FetchedAt went backwards: %v < %v", second.FetchedAt, first.FetchedAt)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if _, err := s.Save("jack", samplePosts()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save("jack", samplePosts()[:1]); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "jack_tweets.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dir entries = %v, want only jack_tweets.json", names)
	}
}

func TestSave_FailureKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)}
	s := New(dir, WithClock(clock.now))

	want := samplePosts()
	if _, err := s.Save("jack", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errors.New("disk full")}
	}
	clock.t = clock.t.Add(time.Hour)
	if _, err := s.Save("jack", samplePosts()[:1]); err == nil {
		t.Fatal("expected Save to fail")
	}

	snap, err := s.Load("jack")
	if err != nil {
		t.Fatalf("previous snapshot unreadable after failed Save: %v", err)
	}
	if !reflect.DeepEqual(snap.Posts, want) {
		t.Errorf("posts = %+v, want %+v", snap.Posts, want)
	}
	if !snap.FetchedAt.Equal(time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("FetchedAt = %v", snap.FetchedAt)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("failed Save left %d entries, want only the snapshot", len(entries))
	}
}

func TestSave_RejectsInvalidUsername(t *testing.T) {
	s := New(t.TempDir())
	for _, name := range []string{"", "../etc", "a/b", "waytoolongusername_x"} {
		if _, err := s.Save(name, nil); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidUsername", name, err)
		}
	}
}

func TestClear_NonExistent(t *testing.T) {
	s := New(t.TempDir())
	if s.Clear("nobody") {
		t.Error("Clear on missing snapshot = true, want false")
	}
}

func TestClear_RemovesSnapshotAndOwnedMedia(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := os.MkdirAll(s.MediaDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	owned := filepath.Join(s.MediaDir(), "1.jpg")
	outside := filepath.Join(t.TempDir(), "keep.jpg")
	for _, p := range []string{owned, outside} {
		if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	posts := []post.Post{{ID: "1", Media: []string{owned, outside}}}
	if _, err := s.Save("jack", posts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !s.Clear("jack") {
		t.Fatal("Clear = false, want true")
	}
	if _, err := os.Stat(s.Path("jack")); !os.IsNotExist(err) {
		t.Error("snapshot file still exists")
	}
	if _, err := os.Stat(owned); !os.IsNotExist(err) {
		t.Error("owned media file still exists")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("media outside the cache dir was touched: %v", err)
	}

	if s.Clear("jack") {
		t.Error("second Clear = true, want false")
	}
}
