package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/tweetlens/internal/analyzer"
	"github.com/kalambet/tweetlens/internal/api"
	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/config"
	"github.com/kalambet/tweetlens/internal/fetcher"
	"github.com/kalambet/tweetlens/internal/gemini"
	"github.com/kalambet/tweetlens/internal/ollama"
	"github.com/kalambet/tweetlens/internal/post"
	"github.com/kalambet/tweetlens/internal/proxy"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <username> <question...>",
	Short: "Ask one question about a user's recent posts",
	Long: `Ask one question about a user's recent posts and print the answer.

Examples:
  tweetlens ask jack "What topics come up most?"
  tweetlens ask @jack --refresh --backend openrouter what is the overall tone`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		question := strings.Join(args[1:], " ")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.sessions.Close()

		stop := startSpinner("Loading tweets")
		s, err := a.sessions.Load(ctx, args[0], refresh)
		stop()
		if err != nil {
			return errors.New(explain(err))
		}
		printStep("%s", describeLoad(s, time.Now()))
		for _, w := range s.Warnings {
			printWarning("%s", w)
		}

		stop = startSpinner("Analyzing")
		res, err := a.sessions.Ask(ctx, question)
		stop()
		if err != nil {
			return errors.New(explain(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderAnswer(res.Text, 0))
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("refresh", false, "bypass the cache and fetch from the API")
}

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh <username>",
	Short: "Fetch a user's posts from the API and update the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		// Only the X token is needed; no backend is involved.
		if err := config.RequireCredentials(cfg, ""); err != nil {
			return err
		}
		store := newStore(cfg)
		f := newFetcher(cfg, store)

		stop := startSpinner("Fetching tweets")
		res, err := f.Fetch(cmd.Context(), args[0], true)
		stop()
		if err != nil {
			return errors.New(explain(err))
		}
		for _, w := range res.Warnings {
			printWarning("%s", w)
		}
		printSuccess("Cached %d tweets for @%s in %s", len(res.Posts), res.Username, store.Path(res.Username))
		return nil
	},
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached posts",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Show the cached snapshot of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store := newStore(cfg)
		username := fetcher.NormalizeUsername(args[0])

		snap, err := store.Peek(username)
		if errors.Is(err, cache.ErrMiss) {
			printStep("No cache for @%s", username)
			return nil
		}
		if err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap, store.Path(username), store.TTL(), time.Now())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <username>",
	Short: "Delete the cached posts and media of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		username := fetcher.NormalizeUsername(args[0])
		if !cache.ValidUsername(username) {
			return fmt.Errorf("%w: %q", cache.ErrInvalidUsername, username)
		}
		if newStore(cfg).Clear(username) {
			printSuccess("Cache cleared for @%s", username)
		} else {
			printStep("No cache for @%s", username)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// printSnapshot lists a snapshot's age and posts.
func printSnapshot(w io.Writer, snap *cache.Snapshot, path string, ttl time.Duration, now time.Time) {
	state := colorize(colorGreen, "fresh")
	if now.Sub(snap.FetchedAt) >= ttl {
		state = colorize(colorYellow, "expired")
	}
	fmt.Fprintf(w, "%s @%s\n", colorize(colorBold, "Snapshot"), snap.Username)
	fmt.Fprintf(w, "  file:    %s\n", path)
	fmt.Fprintf(w, "  fetched: %s (%s, %s)\n", snap.FetchedAt.Local().Format(time.RFC3339),
		humanize.RelTime(snap.FetchedAt, now, "ago", "from now"), state)
	fmt.Fprintf(w, "  tweets:  %d\n", len(snap.Posts))

	var mediaBytes int64
	for _, p := range snap.Posts {
		fmt.Fprintf(w, "\n  %s  %s\n", colorize(colorCyan, string(p.ID)), p.CreatedAt.Format("2006-01-02"))
		fmt.Fprintf(w, "    %s\n", truncate(oneLine(p.Text), 100))
		fmt.Fprintf(w, "    %s likes · %s replies · %s retweets\n",
			humanize.Comma(int64(p.Metrics.LikeCount)),
			humanize.Comma(int64(p.Metrics.ReplyCount)),
			humanize.Comma(int64(p.Metrics.RetweetCount)))
		mediaBytes += mediaSize(p)
	}
	if mediaBytes > 0 {
		fmt.Fprintf(w, "\n  media: %s on disk\n", humanize.Bytes(uint64(mediaBytes)))
	}
}

func mediaSize(p post.Post) int64 {
	var n int64
	for _, m := range p.Media {
		if fi, err := os.Stat(m); err == nil {
			n += fi.Size()
		}
	}
	return n
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", colorize(colorBold, "file:"), config.ConfigFilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		fmt.Fprintln(out, colorize(colorBold, "secrets:"))
		for _, k := range config.SecretStatus(cfg) {
			fmt.Fprintf(out, "  %s (%s) = %s\n", k.Key, k.EnvVar, k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <x|gemini|openrouter>",
	Short: "Store a credential in the system keychain, read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(errOut, "Paste the %s secret and press Enter: ", args[0])
		value, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if err := config.StoreSecret(args[0], value); err != nil {
			return err
		}
		printSuccess("Stored %s secret", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available on OpenRouter",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		client := proxy.NewClientWithBaseURL(cfg.Secrets.OpenRouterAPIKey, cfg.OpenRouter.BaseURL, config.Duration(cfg.OpenRouter.Timeout))
		models, err := client.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		printModels(cmd.OutOrStdout(), models, cfg.OpenRouter.Model)
		return nil
	},
}

func printModels(w io.Writer, models []proxy.Model, current string) {
	for _, m := range models {
		marker := "  "
		if m.ID == current {
			marker = colorize(colorGreen, "* ")
		}
		line := marker + m.ID
		if m.ContextLength > 0 {
			line += fmt.Sprintf("  (%s ctx)", humanize.Comma(int64(m.ContextLength)))
		}
		fmt.Fprintln(w, line)
	}
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check credentials, cache and backend reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, kind, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		printStatus("Version", "%s", version)
		printStatus("Config", "%s", config.ConfigFilePath())
		printStatus("Cache", "%s (ttl %s)", cfg.Cache.Dir, cfg.Cache.TTL)
		printStatus("Backend", "%s", kind)
		for _, k := range config.SecretStatus(cfg) {
			printStatus(k.Key, "%s", k.Value)
		}

		if err := config.RequireCredentials(cfg, string(kind)); err != nil {
			printWarning("%v", err)
			return nil
		}
		if err := pingBackend(ctx, cfg, kind); err != nil {
			printError("%s unreachable: %v", kind, err)
			return nil
		}
		printSuccess("%s reachable", kind)
		return nil
	},
}

// pingBackend performs the cheapest call that proves the backend answers.
func pingBackend(ctx context.Context, cfg config.Config, kind analyzer.Kind) error {
	switch kind {
	case analyzer.KindGemini:
		client := gemini.NewWithBaseURL(cfg.Secrets.GeminiAPIKey, cfg.Gemini.BaseURL, config.Duration(cfg.Gemini.Timeout))
		_, err := client.GenerateContent(ctx, cfg.Gemini.Model, gemini.GenerateRequest{
			Contents:         []gemini.Content{{Role: "user", Parts: []gemini.Part{gemini.TextPart("Test connection")}}},
			GenerationConfig: &gemini.GenerationConfig{MaxOutputTokens: 16},
		})
		return err
	case analyzer.KindOpenRouter:
		client := proxy.NewClientWithBaseURL(cfg.Secrets.OpenRouterAPIKey, cfg.OpenRouter.BaseURL, config.Duration(cfg.OpenRouter.Timeout))
		_, err := client.ListModels(ctx)
		return err
	case analyzer.KindOllama:
		client := ollama.NewWithTimeout(cfg.Ollama.BaseURL, config.Duration(cfg.Ollama.Timeout))
		if !client.IsRunning(ctx) {
			return ollama.ErrNotRunning
		}
		if !client.HasModel(ctx, cfg.Ollama.Model) {
			return fmt.Errorf("model %s is not pulled", cfg.Ollama.Model)
		}
		return nil
	}
	return fmt.Errorf("unknown backend %q", kind)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analyzer as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.sessions.Close()

		s := api.NewMCPServer(api.MCPDeps{
			Sessions: a.sessions,
			Cache:    a.store,
			Version:  version,
		})
		return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
	},
}
