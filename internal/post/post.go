// Package post defines the normalized representation of a fetched X post.
package post

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Metrics holds the public engagement counters of a post.
type Metrics struct {
	LikeCount    int `json:"like_count"`
	ReplyCount   int `json:"reply_count"`
	RetweetCount int `json:"retweet_count"`
	QuoteCount   int `json:"quote_count"`
}

// Post is one original message from a user's timeline.
type Post struct {
	ID        ID        `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Metrics   Metrics   `json:"metrics"`
	Media     []string  `json:"media"`
}

// ID is a post identifier. X returns ids as strings, but snapshots written by
// older tooling stored them as JSON numbers, so both forms decode.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("post id: %w", err)
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return fmt.Errorf("post id %s is not an integer", n)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Dedupe drops posts whose id was already seen, keeping the first occurrence
// and the original order.
func Dedupe(posts []Post) []Post {
	seen := make(map[ID]struct{}, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// MediaPaths returns every media path across posts in order.
func MediaPaths(posts []Post) []string {
	var paths []string
	for _, p := range posts {
		paths = append(paths, p.Media...)
	}
	return paths
}
