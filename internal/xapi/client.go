package xapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "https://api.twitter.com"
	defaultTimeout = 30 * time.Second

	// DefaultResults is how many recent tweets are requested by default.
	DefaultResults = 10
	// MaxResults is the largest page the timeline endpoint accepts.
	MaxResults = 100
	minResults = 5
)

// ErrUserNotFound is returned when the username lookup yields no user.
var ErrUserNotFound = errors.New("user not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api: unexpected status %d: %s", e.Status, e.Body)
}

// Client talks to the X API v2 with an app bearer token.
type Client struct {
	http *resty.Client
}

// New creates a Client for the public API.
func New(bearerToken string) *Client {
	return NewWithBaseURL(bearerToken, defaultBaseURL, defaultTimeout)
}

// NewWithBaseURL creates a Client against a custom base URL (for testing).
// A non-positive timeout falls back to the default.
func NewWithBaseURL(bearerToken, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(bearerToken).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{http: c}
}

// UserID resolves a handle to its stable numeric id.
func (c *Client) UserID(ctx context.Context, username string) (string, error) {
	var out userResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("username", username).
		SetResult(&out).
		Get("/2/users/by/username/{username}")
	if err != nil {
		return "", fmt.Errorf("looking up user %s: %w", username, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	if out.Data == nil || out.Data.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return out.Data.ID, nil
}

// RecentTweets returns up to limit of the user's most recent original tweets
// (retweets and replies excluded) with public metrics and media expansions.
func (c *Client) RecentTweets(ctx context.Context, userID string, limit int) (*Timeline, error) {
	if limit <= 0 {
		limit = DefaultResults
	}
	limit = min(limit, MaxResults)
	// The endpoint rejects max_results below 5; trim locally instead.
	asked := max(limit, minResults)

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(asked))
	params.Set("tweet.fields", "created_at,public_metrics,attachments")
	params.Set("expansions", "attachments.media_keys")
	params.Set("media.fields", "url,preview_image_url,type")
	params.Set("exclude", "retweets,replies")

	var out timelineResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetQueryParamsFromValues(params).
		SetResult(&out).
		Get("/2/users/{id}/tweets")
	if err != nil {
		return nil, fmt.Errorf("fetching tweets for %s: %w", userID, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	tweets := out.Data
	if len(tweets) > limit {
		tweets = tweets[:limit]
	}
	tl := &Timeline{
		Tweets: tweets,
		Media:  make(map[string]Media, len(out.Includes.Media)),
	}
	for _, m := range out.Includes.Media {
		tl.Media[m.MediaKey] = m
	}
	return tl, nil
}
