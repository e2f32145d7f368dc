package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/kalambet/tweetlens/internal/analyzer"
	"github.com/kalambet/tweetlens/internal/cache"
	"github.com/kalambet/tweetlens/internal/config"
	"github.com/kalambet/tweetlens/internal/fetcher"
	"github.com/kalambet/tweetlens/internal/session"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// errOut receives status messages, spinners and progress bars. Answers go to
// stdout.
var errOut io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(errOut, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorCyan, "→ "+msg))
}

// renderAnswer draws the answer in a rounded panel titled "Analysis".
func renderAnswer(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	title := lipgloss.NewStyle().Bold(true)
	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(width - 2)
	if !noColor {
		title = title.Foreground(lipgloss.Color("#a6e3a1"))
		box = box.BorderForeground(lipgloss.Color("#89b4fa"))
	}
	return box.Render(title.Render("Analysis") + "\n\n" + text)
}

// describeLoad reports where the session's posts came from.
func describeLoad(s *session.Session, now time.Time) string {
	if s.FromCache {
		return fmt.Sprintf("Using cached tweets from %s (%s)",
			s.FetchedAt.Local().Format("2006-01-02 15:04:05"), humanize.RelTime(s.FetchedAt, now, "ago", "from now"))
	}
	return fmt.Sprintf("Fetched %d tweets from @%s", len(s.Posts), s.Username)
}

// explain maps the known failure kinds to a message for the terminal.
func explain(err error) string {
	var be *analyzer.BackendError
	switch {
	case errors.Is(err, fetcher.ErrUserNotFound):
		return "User not found: " + err.Error()
	case errors.Is(err, cache.ErrInvalidUsername):
		return "Invalid username: use 1-15 letters, digits or underscores"
	case errors.Is(err, fetcher.ErrFetchFailed):
		return "Could not fetch tweets: " + err.Error()
	case errors.Is(err, config.ErrCredentialMissing):
		return err.Error()
	case errors.As(err, &be):
		if be.Status != 0 {
			return fmt.Sprintf("Analysis failed (%s, HTTP %d): %s", be.Backend, be.Status, be.Body)
		}
		return "Analysis failed: " + be.Error()
	case errors.Is(err, session.ErrEmptyQuestion):
		return "Please enter a question"
	default:
		return err.Error()
	}
}

// startSpinner shows an indeterminate spinner on errOut until the returned
// stop function is called.
func startSpinner(desc string) (stop func()) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(errOut),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			_ = bar.Finish()
		})
	}
}
