package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/tweetlens/internal/analyzer"
	"github.com/kalambet/tweetlens/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat [username]",
	Short: "Start the interactive menu (default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	intr := make(chan os.Signal, 1)
	signal.Notify(intr, os.Interrupt)
	defer signal.Stop(intr)

	var username string
	if len(args) == 1 {
		username = args[0]
	}

	l := &chatLoop{
		sessions: a.sessions,
		in:       newPrompter(os.Stdin, intr),
		out:      cmd.OutOrStdout(),
		spin:     startSpinner,
		now:      time.Now,
	}
	fmt.Fprintln(errOut, colorize(colorBold+colorCyan, "tweetlens")+" · backend "+string(a.kind))
	return l.run(ctx, username)
}

// chatSessions is the part of *session.Controller the menu drives.
type chatSessions interface {
	Select(ctx context.Context, username string) (*session.Session, error)
	Refresh(ctx context.Context) (*session.Session, error)
	Clear() (bool, error)
	Ask(ctx context.Context, question string) (analyzer.Result, error)
	Current() *session.Session
	Close()
}

var errInterrupted = errors.New("interrupted")

// prompter reads lines from a reader in the background so that a pending
// read can be abandoned on interrupt.
type prompter struct {
	lines <-chan string
	intr  <-chan os.Signal
}

func newPrompter(r io.Reader, intr <-chan os.Signal) *prompter {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return &prompter{lines: lines, intr: intr}
}

// ask prints label and waits for one line. It returns io.EOF when input is
// closed and errInterrupted on SIGINT.
func (p *prompter) ask(ctx context.Context, label string) (string, error) {
	fmt.Fprint(errOut, colorize(colorBold, label))
	select {
	case line, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(errOut)
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-p.intr:
		fmt.Fprintln(errOut)
		return "", errInterrupted
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// drain discards interrupts received while an action was running. Only
// prompt reads are interruptible; fetches and analyses run to completion or
// their own timeout so that no partial snapshot is ever written.
func (p *prompter) drain() {
	for {
		select {
		case <-p.intr:
		default:
			return
		}
	}
}

const menu = `
1. Ask a question
2. Refresh tweets
3. Clear cache
4. Switch user
5. Exit
`

type chatLoop struct {
	sessions chatSessions
	in       *prompter
	out      io.Writer
	spin     func(desc string) func()
	now      func() time.Time
	width    int
}

func (l *chatLoop) run(ctx context.Context, username string) error {
	defer l.sessions.Close()

	if !l.switchUser(ctx, username) {
		return nil
	}

	for {
		fmt.Fprint(errOut, menu)
		choice, err := l.in.ask(ctx, "Choose an option: ")
		if errors.Is(err, errInterrupted) {
			continue
		}
		if err != nil {
			return ignoreEOF(err)
		}

		switch choice {
		case "1":
			if err := l.askLoop(ctx); err != nil {
				return ignoreEOF(err)
			}
		case "2":
			l.refresh(ctx)
		case "3":
			l.clear()
		case "4":
			if !l.switchUser(ctx, "") {
				return nil
			}
		case "5", "exit", "quit":
			printStep("Thanks for using tweetlens")
			return nil
		default:
			printWarning("Invalid choice %q", choice)
		}
	}
}

// switchUser loads username, prompting until a user loads. It returns false
// when input ends.
func (l *chatLoop) switchUser(ctx context.Context, username string) bool {
	for {
		if username == "" {
			var err error
			username, err = l.in.ask(ctx, "Enter X username (without @): ")
			if errors.Is(err, errInterrupted) {
				continue
			}
			if err != nil {
				return false
			}
			if username == "" {
				continue
			}
		}

		stop := l.spin(fmt.Sprintf("Loading tweets for @%s", strings.TrimPrefix(username, "@")))
		s, err := l.sessions.Select(ctx, username)
		stop()
		l.in.drain()

		if err != nil {
			printError("%s", explain(err))
			username = ""
			continue
		}
		l.reportLoad(s)
		return true
	}
}

func (l *chatLoop) reportLoad(s *session.Session) {
	printSuccess("%s", describeLoad(s, l.now()))
	for _, w := range s.Warnings {
		printWarning("%s", w)
	}
	if len(s.Posts) == 0 {
		printWarning("No tweets loaded for @%s", s.Username)
	}
}

func (l *chatLoop) askLoop(ctx context.Context) error {
	for {
		q, err := l.in.ask(ctx, "Question ('exit' for menu): ")
		if errors.Is(err, errInterrupted) {
			return nil
		}
		if err != nil {
			return err
		}
		if q == "" {
			continue
		}
		if strings.EqualFold(q, "exit") {
			return nil
		}

		stop := l.spin("Analyzing")
		res, err := l.sessions.Ask(ctx, q)
		stop()
		l.in.drain()

		if err != nil {
			printError("%s", explain(err))
			continue
		}
		fmt.Fprintln(l.out, renderAnswer(res.Text, l.width))
		if len(res.Skipped) > 0 {
			printWarning("%d images could not be attached", len(res.Skipped))
		}
	}
}

func (l *chatLoop) refresh(ctx context.Context) {
	stop := l.spin("Refreshing tweets")
	s, err := l.sessions.Refresh(ctx)
	stop()
	l.in.drain()

	if err != nil {
		printError("%s", explain(err))
		return
	}
	l.reportLoad(s)
}

func (l *chatLoop) clear() {
	cur := l.sessions.Current()
	removed, err := l.sessions.Clear()
	switch {
	case err != nil:
		printError("%s", explain(err))
	case removed:
		printSuccess("Cache cleared for @%s", cur.Username)
	default:
		printStep("No cache for @%s", cur.Username)
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
