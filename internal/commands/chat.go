package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"directchat/internal/client"
	"directchat/internal/config"
	"directchat/internal/content"
	"directchat/internal/models"
	"directchat/internal/syncloop"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const chatHelp = `Commands:
  /search <name>  find users
  /open <n>       talk to search result n
  /chat <n>       open chat n from the list
  /help           show this help
  /quit           leave
Anything else is sent to the open conversation.`

// Chat runs an interactive terminal session for username. Commands are read
// line by line from in until /quit, EOF or ctx cancellation.
//
// Reads from in cannot be interrupted, so after a return on ctx cancellation
// the reading goroutine stays blocked until in yields a line or is closed.
// Callers that outlive the session should pass a reader they can close.
func Chat(ctx context.Context, username string, cfg *config.Config, in io.Reader, out io.Writer) error {
	c := client.New(cfg.BaseURL, nil)

	user, err := c.Login(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	r := &renderer{out: out, seen: make(map[string]bool)}
	loop := syncloop.New(c, syncloop.Session{User: user}, syncloop.Config{
		Interval: cfg.PollInterval,
		Logger:   slog.Default().With("user", user.Username),
		OnChange: r.render,
	})
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Logout()

	r.printf("Logged in as %s.\n%s\n", user.Username, chatHelp)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := handleLine(ctx, loop, r, line)
			if err != nil {
				r.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, loop *syncloop.Loop, r *renderer, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		return true, nil
	case "/help":
		r.printf("%s\n", chatHelp)
		return false, nil
	case "/search":
		return false, loop.Search(ctx, arg)
	case "/open":
		results := loop.View().SearchResults
		i, err := pick(arg, len(results))
		if err != nil {
			return false, err
		}
		loop.SelectUser(results[i])
		loop.Tick(ctx)
		return false, nil
	case "/chat":
		chats := loop.View().Chats
		i, err := pick(arg, len(chats))
		if err != nil {
			return false, err
		}
		loop.SelectChat(chats[i].ID)
		loop.Tick(ctx)
		return false, nil
	}

	loop.SetInput(line)
	return false, loop.Submit(ctx)
}

// pick parses a 1-based list index.
func pick(arg string, n int) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > n {
		return 0, fmt.Errorf("%w: expected a number between 1 and %d", models.ErrValidation, n)
	}
	return i - 1, nil
}

// renderer prints what changed between snapshots. OnChange may fire from
// several goroutines, so all output goes through mu.
type renderer struct {
	out io.Writer

	mu        sync.Mutex
	chats     string
	results   string
	selection syncloop.Selection
	seen      map[string]bool
	lastErr   error
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) render(v syncloop.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := formatChats(v.Chats); s != r.chats {
		r.chats = s
		_, _ = fmt.Fprint(r.out, s)
	}

	if s := formatResults(v.SearchResults); s != r.results {
		r.results = s
		_, _ = fmt.Fprint(r.out, s)
	}

	if v.Selection != r.selection {
		r.selection = v.Selection
		if other, ok := v.Counterpart(); ok {
			_, _ = fmt.Fprintf(r.out, "--- talking to %s ---\n", other.Username)
		}
	}

	names := make(map[string]string, len(v.Chats)+1)
	names[v.User.ID] = v.User.Username
	for _, c := range v.Chats {
		for _, p := range c.Participants {
			names[p.ID] = p.Username
		}
	}
	for _, m := range v.Messages {
		if r.seen[m.ID] {
			continue
		}
		r.seen[m.ID] = true
		name := names[m.SenderID]
		if name == "" {
			name = m.SenderID
		}
		_, _ = fmt.Fprintf(r.out, "[%s] %s: %s\n", time.UnixMilli(m.Timestamp).Format(time.TimeOnly), name, content.Printable(m.Content))
	}

	if v.Err != nil && !errors.Is(v.Err, r.lastErr) {
		_, _ = fmt.Fprintf(r.out, "send failed, your text is kept: %v\n", v.Err)
	}
	r.lastErr = v.Err
}

func formatChats(chats []models.PopulatedChat) string {
	if len(chats) == 0 {
		return ""
	}
	rows := lo.Map(chats, func(c models.PopulatedChat, i int) []string {
		last := ""
		if c.LastMessage != nil {
			last = content.Printable(c.LastMessage.Content)
		}
		return []string{strconv.Itoa(i + 1), c.OtherUser.Username, last}
	})
	return "Chats:\n" + table([]string{"#", "With", "Last message"}, rows)
}

func formatResults(users []models.User) string {
	if len(users) == 0 {
		return ""
	}
	rows := lo.Map(users, func(u models.User, i int) []string {
		return []string{strconv.Itoa(i + 1), u.Username}
	})
	return "Users:\n" + table([]string{"#", "User"}, rows)
}

func table(header []string, rows [][]string) string {
	var b strings.Builder
	t := tablewriter.NewWriter(&b)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("\t")
	t.AppendBulk(rows)
	t.Render()
	return b.String()
}
