package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/media"
	"github.com/kalambet/tweetlens/internal/xapi"
)

type fakeSource struct {
	timeline    *xapi.Timeline
	userErr     error
	timelineErr error
	userCalls   int
	tlCalls     int
}

func (s *fakeSource) UserID(ctx context.Context, username string) (string, error) {
	s.userCalls++
	if s.userErr != nil {
		return "", s.userErr
	}
	return "id-" + username, nil
}

func (s *fakeSource) RecentTweets(ctx context.Context, userID string, limit int) (*xapi.Timeline, error) {
	s.tlCalls++
	if s.timelineErr != nil {
		return nil, s.timelineErr
	}
	return s.timeline, nil
}

func threeTweets(mediaURL string) *xapi.Timeline {
	created := time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)
	return &xapi.Timeline{
		Tweets: []xapi.Tweet{
			{ID: "3", Text: "third", CreatedAt: created, PublicMetrics: xapi.PublicMetrics{LikeCount: 3}},
			{ID: "2", Text: "with photo", CreatedAt: created.Add(-time.Hour),
				Attachments: &xapi.Attachments{MediaKeys: []string{"3_2"}}},
			{ID: "1", Text: "first", CreatedAt: created.Add(-2 * time.Hour)},
		},
		Media: map[string]xapi.Media{
			"3_2": {MediaKey: "3_2", Type: "photo", URL: mediaURL},
		},
	}
}

func TestFetch_SecondCallServedFromCache(t *testing.T) {
	src := &fakeSource{timeline: threeTweets("")}
	store := cache.New(t.TempDir())
	f := New(src, store)
	ctx := context.Background()

	first, err := f.Fetch(ctx, "jack", false)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if first.FromCache {
		t.Error("first fetch reported FromCache")
	}

	second, err := f.Fetch(ctx, "@jack", false)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if !second.FromCache {
		t.Error("second fetch did not come from cache")
	}
	if src.tlCalls != 1 {
		t.Errorf("timeline requested %d times, want 1", src.tlCalls)
	}
	if len(second.Posts) != len(first.Posts) {
		t.Fatalf("cached posts = %d, fetched = %d", len(second.Posts), len(first.Posts))
	}
	for i := range first.Posts {
		a, b := first.Posts[i], second.Posts[i]
		if a.ID != b.ID || a.Text != b.Text || !a.CreatedAt.Equal(b.CreatedAt) || a.Metrics != b.Metrics {
			t.Errorf("post %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestFetch_ForceBypassesCache(t *testing.T) {
	src := &fakeSource{timeline: threeTweets("")}
	f := New(src, cache.New(t.TempDir()))
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "jack", false); err != nil {
		t.Fatal(err)
	}
	res, err := f.Fetch(ctx, "jack", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("forced fetch came from cache")
	}
	if src.tlCalls != 2 {
		t.Errorf("timeline requested %d times, want 2", src.tlCalls)
	}
}

func TestFetch_MediaFailureKeepsPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	store := cache.New(dir)
	src := &fakeSource{timeline: threeTweets(srv.URL + "/photo.jpg")}
	f := New(src, store, WithDownloader(media.NewDownloader(store.MediaDir(), time.Second)))

	res, err := f.Fetch(context.Background(), "jack", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Posts) != 3 {
		t.Fatalf("got %d posts, want 3", len(res.Posts))
	}
	if len(res.Posts[1].Media) != 0 {
		t.Errorf("post with failed media has %v", res.Posts[1].Media)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "post 2") {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestFetch_MediaNaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	store := cache.New(t.TempDir())
	src := &fakeSource{timeline: &xapi.Timeline{
		Tweets: []xapi.Tweet{{ID: "9", Text: "two photos",
			Attachments: &xapi.Attachments{MediaKeys: []string{"a", "b"}}}},
		Media: map[string]xapi.Media{
			"a": {MediaKey: "a", Type: "photo", URL: srv.URL + "/a.jpg"},
			"b": {MediaKey: "b", Type: "video", PreviewImageURL: srv.URL + "/b.jpg"},
		},
	}}
	f := New(src, store, WithDownloader(media.NewDownloader(store.MediaDir(), time.Second)))

	res, err := f.Fetch(context.Background(), "jack", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []string{
		filepath.Join(store.MediaDir(), "9.jpg"),
		filepath.Join(store.MediaDir(), "9_1.jpg"),
	}
	if !reflect.DeepEqual(res.Posts[0].Media, want) {
		t.Errorf("Media = %v, want %v", res.Posts[0].Media, want)
	}
	for _, p := range want {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

// cancellingDownloader cancels the fetch on the first download.
type cancellingDownloader struct {
	cancel context.CancelFunc
	calls  int
}

func (d *cancellingDownloader) Download(ctx context.Context, url, name string) (string, error) {
	d.calls++
	d.cancel()
	return "", ctx.Err()
}

func TestFetch_CancelledDuringMediaSavesNothing(t *testing.T) {
	store := cache.New(t.TempDir())
	src := &fakeSource{timeline: threeTweets("https://pbs.twimg.com/media/x.jpg")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dl := &cancellingDownloader{cancel: cancel}
	f := New(src, store, WithDownloader(dl))

	_, err := f.Fetch(ctx, "jack", false)
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrFetchFailed wrapping context.Canceled", err)
	}
	if dl.calls != 1 {
		t.Errorf("downloads = %d, want 1", dl.calls)
	}
	if _, err := os.Stat(store.Path("jack")); !os.IsNotExist(err) {
		t.Errorf("cancelled fetch wrote a snapshot: %v", err)
	}
}

func TestFetch_NonNumericPostIDSkipsMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	root := t.TempDir()
	store := cache.New(root)
	src := &fakeSource{timeline: &xapi.Timeline{
		Tweets: []xapi.Tweet{{ID: "../../evil", Text: "sneaky",
			Attachments: &xapi.Attachments{MediaKeys: []string{"a"}}}},
		Media: map[string]xapi.Media{
			"a": {MediaKey: "a", Type: "photo", URL: srv.URL + "/a.jpg"},
		},
	}}
	f := New(src, store, WithDownloader(media.NewDownloader(store.MediaDir(), time.Second)))

	res, err := f.Fetch(context.Background(), "jack", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Posts) != 1 || len(res.Posts[0].Media) != 0 {
		t.Fatalf("posts = %+v", res.Posts)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "unexpected id") {
		t.Errorf("Warnings = %v", res.Warnings)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "evil.jpg")); !os.IsNotExist(err) {
		t.Error("media written outside the cache")
	}
}

func TestFetch_HandleCaseSharesSnapshot(t *testing.T) {
	store := cache.New(t.TempDir())
	src := &fakeSource{timeline: threeTweets("")}
	f := New(src, store)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "Jack", false); err != nil {
		t.Fatal(err)
	}
	res, err := f.Fetch(ctx, "@JACK", false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || src.tlCalls != 1 {
		t.Errorf("FromCache=%v timeline calls=%d, want a cache hit", res.FromCache, src.tlCalls)
	}
	if res.Username != "jack" {
		t.Errorf("Username = %q", res.Username)
	}
}

func TestFetch_UserNotFound(t *testing.T) {
	src := &fakeSource{userErr: xapi.ErrUserNotFound}
	f := New(src, cache.New(t.TempDir()))

	_, err := f.Fetch(context.Background(), "ghost", false)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestFetch_FailureLeavesCacheUntouched(t *testing.T) {
	store := cache.New(t.TempDir())
	src := &fakeSource{timeline: threeTweets("")}
	f := New(src, store)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "jack", false); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(store.Path("jack"))
	if err != nil {
		t.Fatal(err)
	}

	src.timelineErr = errors.New("connection reset")
	_, err = f.Fetch(ctx, "jack", true)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}

	after, err := os.ReadFile(store.Path("jack"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("failed refresh modified the snapshot")
	}
}

func TestFetch_EmptyTimelineIsCached(t *testing.T) {
	store := cache.New(t.TempDir())
	src := &fakeSource{timeline: &xapi.Timeline{}}
	f := New(src, store)

	res, err := f.Fetch(context.Background(), "quiet", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Posts) != 0 {
		t.Errorf("got %d posts", len(res.Posts))
	}
	if _, err := store.Load("quiet"); err != nil {
		t.Errorf("empty result not cached: %v", err)
	}
}

func TestFetch_CorruptCacheRefetches(t *testing.T) {
	store := cache.New(t.TempDir())
	if err := os.WriteFile(store.Path("jack"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{timeline: threeTweets("")}
	f := New(src, store)

	res, err := f.Fetch(context.Background(), "jack", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.FromCache || src.tlCalls != 1 {
		t.Errorf("FromCache=%v calls=%d", res.FromCache, src.tlCalls)
	}
}

func TestFetch_InvalidUsername(t *testing.T) {
	src := &fakeSource{}
	f := New(src, cache.New(t.TempDir()))

	_, err := f.Fetch(context.Background(), "../etc/passwd", false)
	if !errors.Is(err, cache.ErrInvalidUsername) {
		t.Fatalf("err = %v, want ErrInvalidUsername", err)
	}
	if src.userCalls != 0 {
		t.Error("invalid username reached the API")
	}
}

func TestNormalizeUsername(t *testing.T) {
	cases := map[string]string{
		"@jack":     "jack",
		"  jack ":   "jack",
		"jack":      "jack",
		"@Jack":     "jack",
		"NASA_Moon": "nasa_moon",
	}
	for in, want := range cases {
		if got := NormalizeUsername(in); got != want {
			t.Errorf("NormalizeUsername(%q) = %q, want %q", in, got, want)
		}
	}
}
