// Package api exposes the analyzer to MCP clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tweetlens/internal/analyzer"
	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/fetcher"
	"github.com/kalambet/tweetlens/internal/post"
	"github.com/kalambet/tweetlens/internal/session"
)

// Sessions is the subset of *session.Controller the tools drive. Tool calls
// run concurrently, so each method must select the user and act on it
// atomically.
type Sessions interface {
	Load(ctx context.Context, username string, refresh bool) (*session.Session, error)
	AskAbout(ctx context.Context, username, question string) (analyzer.Result, error)
}

// CacheClearer removes a user's snapshot.
type CacheClearer interface {
	Clear(username string) bool
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions Sessions
	Cache    CacheClearer
	Version  string
}

// NewMCPServer creates an MCP server with all tweetlens tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"tweetlens",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("tweetlens: load recent X posts of a user and ask questions about them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("load_posts",
			mcp.WithDescription("Load the recent original posts of an X user, from the local cache when fresh."),
			mcp.WithString("username", mcp.Description("X handle, with or without @"), mcp.Required()),
			mcp.WithBoolean("refresh", mcp.Description("Bypass the cache and fetch from the API")),
		),
		mcpLoadPosts(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_about_posts",
			mcp.WithDescription("Ask a question about an X user's recent posts. Posts are loaded first if needed."),
			mcp.WithString("username", mcp.Description("X handle, with or without @"), mcp.Required()),
			mcp.WithString("question", mcp.Description("What to find out about the posts"), mcp.Required()),
		),
		mcpAskAboutPosts(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_cache",
			mcp.WithDescription("Delete the cached posts and media of an X user."),
			mcp.WithString("username", mcp.Description("X handle, with or without @"), mcp.Required()),
		),
		mcpClearCache(deps),
	)

	return s
}

type loadedPosts struct {
	Username  string      `json:"username"`
	FetchedAt time.Time   `json:"fetched_at"`
	FromCache bool        `json:"from_cache"`
	Count     int         `json:"count"`
	Warnings  []string    `json:"warnings,omitempty"`
	Posts     []post.Post `json:"posts"`
}

func mcpLoadPosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}

		s, err := deps.Sessions.Load(ctx, username, req.GetBool("refresh", false))
		if err != nil {
			return mcpError(describe(err)), nil
		}

		data, err := json.MarshalIndent(loadedPosts{
			Username:  s.Username,
			FetchedAt: s.FetchedAt,
			FromCache: s.FromCache,
			Count:     len(s.Posts),
			Warnings:  s.Warnings,
			Posts:     s.Posts,
		}, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding posts: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func mcpAskAboutPosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		res, err := deps.Sessions.AskAbout(ctx, username, question)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		return mcpText(res.Text), nil
	}
}

func mcpClearCache(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		username = fetcher.NormalizeUsername(username)
		if !cache.ValidUsername(username) {
			return mcpError(fmt.Sprintf("invalid username %q", username)), nil
		}
		if deps.Cache.Clear(username) {
			return mcpText(fmt.Sprintf("Cache cleared for @%s", username)), nil
		}
		return mcpText(fmt.Sprintf("No cache for @%s", username)), nil
	}
}

// describe turns the known failure kinds into messages for the MCP client.
func describe(err error) string {
	switch {
	case errors.Is(err, fetcher.ErrUserNotFound):
		return "user not found: " + err.Error()
	case errors.Is(err, cache.ErrInvalidUsername):
		return err.Error()
	case errors.Is(err, fetcher.ErrFetchFailed):
		return "could not fetch posts: " + err.Error()
	case analyzer.IsBackendError(err):
		return "analysis failed: " + err.Error()
	default:
		return err.Error()
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
