// Package xapi is a minimal client for the X (Twitter) API v2 endpoints used
// to read a user's recent timeline.
package xapi

import "time"

// Tweet is a timeline entry as returned by GET /2/users/:id/tweets.
type Tweet struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	CreatedAt     time.Time     `json:"created_at"`
	PublicMetrics PublicMetrics `json:"public_metrics"`
	Attachments   *Attachments  `json:"attachments,omitempty"`
}

// PublicMetrics are the engagement counters of a tweet.
type PublicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

// Attachments references expanded objects in Includes.
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// Media is an expanded media object.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// DirectURL prefers the full-resolution URL and falls back to the preview.
// Videos and GIFs only carry a preview image.
func (m Media) DirectURL() string {
	if m.URL != "" {
		return m.URL
	}
	return m.PreviewImageURL
}

// Timeline is one page of tweets with their media expansions keyed by media_key.
type Timeline struct {
	Tweets []Tweet
	Media  map[string]Media
}

type user struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type userResponse struct {
	Data   *user        `json:"data"`
	Errors []apiProblem `json:"errors,omitempty"`
}

type timelineResponse struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Media []Media `json:"media"`
	} `json:"includes"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}
