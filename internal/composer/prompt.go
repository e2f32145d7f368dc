// Package composer turns a user's posts and a question into backend-ready
// prompts. Output depends only on its inputs, so the same posts and question
// always produce byte-identical payloads.
package composer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/tweetlens/internal/media"
	"github.com/kalambet/tweetlens/internal/post"
)

// SystemPrompt fixes the assistant's role for chat-style backends.
const SystemPrompt = "You are analyzing Twitter/X user activity. Focus on key patterns in behavior, " +
	"interests, and communication style. Provide concise, data-driven insights based only on the provided tweets."

const multiModalInstruction = "Please provide a clear and concise analysis considering both the text content and any images present."

// SkippedImage records a media file that could not be attached.
type SkippedImage struct {
	Path   string
	Reason string
}

// MultiModalPrompt is one text block plus the images of all posts in order.
type MultiModalPrompt struct {
	Text    string
	Images  []media.Image
	Skipped []SkippedImage
}

// ChatPrompt is a system message and a single user message.
type ChatPrompt struct {
	System string
	User   string
}

// BuildMultiModal renders posts as a text block and loads every referenced
// image through loader. Images that fail to load are reported in Skipped and
// left out; the prompt is still usable.
func BuildMultiModal(username, question string, posts []post.Post, loader media.Loader) MultiModalPrompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze these tweets from @%s to answer: %s\n\n", username, question)
	sb.WriteString(multiModalInstruction)
	sb.WriteString("\n\nTweets:\n")

	out := MultiModalPrompt{}
	for _, p := range posts {
		fmt.Fprintf(&sb, "\nText: %s\n", p.Text)
		fmt.Fprintf(&sb, "Metrics: %d likes, %d replies, %d retweets\n",
			p.Metrics.LikeCount, p.Metrics.ReplyCount, p.Metrics.RetweetCount)

		for _, path := range p.Media {
			img, err := loader.Load(path)
			if err != nil {
				out.Skipped = append(out.Skipped, SkippedImage{Path: path, Reason: err.Error()})
				continue
			}
			out.Images = append(out.Images, img)
		}
	}
	out.Text = sb.String()
	return out
}

// chatPost is the JSON shape posts take inside a chat prompt. Local media
// paths mean nothing to a remote model and are left out.
type chatPost struct {
	ID        post.ID      `json:"id"`
	Text      string       `json:"text"`
	CreatedAt string       `json:"created_at"`
	Metrics   post.Metrics `json:"metrics"`
}

// BuildChat renders posts as indented JSON inside the user message.
func BuildChat(username, question string, posts []post.Post) (ChatPrompt, error) {
	rows := make([]chatPost, len(posts))
	for i, p := range posts {
		rows[i] = chatPost{
			ID:        p.ID,
			Text:      p.Text,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
			Metrics:   p.Metrics,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return ChatPrompt{}, fmt.Errorf("encoding posts: %w", err)
	}

	return ChatPrompt{
		System: SystemPrompt,
		User: fmt.Sprintf("Based on these tweets from @%s, %s\n\nTweets:\n%s",
			username, question, strings.TrimRight(buf.String(), "\n")),
	}, nil
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
