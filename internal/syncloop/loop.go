// Package syncloop keeps a client's view of chats and messages in step with
// the server by polling, and reconciles optimistic sends with the results.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"directchat/internal/models"

	"github.com/samber/lo"
)

const DefaultInterval = 1500 * time.Millisecond

var (
	ErrNoSession = errors.New("no session")
	ErrRunning   = errors.New("sync loop already running")
)

type Backend interface {
	SearchUsers(ctx context.Context, query, excludeUserID string) ([]models.User, error)
	ListChats(ctx context.Context, userID string) ([]models.PopulatedChat, error)
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	SendMessage(ctx context.Context, senderID, recipientID, content string) (models.Message, error)
	AppendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, error)
}

// Session is the logged-in user the loop works for.
type Session struct {
	User models.User
}

type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
	// OnChange receives a snapshot after every state change. It may be called
	// from several goroutines at once.
	OnChange func(View)
}

type Loop struct {
	backend  Backend
	interval time.Duration
	log      *slog.Logger
	onChange func(View)

	mu      sync.Mutex
	session *Session
	state   View

	// Request generations: a response is applied only if no newer one was.
	chatsGen, chatsApplied       uint64
	messagesGen, messagesApplied uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func New(backend Backend, session Session, config Config) *Loop {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		backend:  backend,
		interval: interval,
		log:      logger,
		onChange: config.OnChange,
		session:  &session,
		state:    View{User: session.User, Selection: Idle{}},
	}
}

// Start launches the polling task. It fetches immediately and then once per interval
// until Stop, Logout or ctx cancellation.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		return ErrNoSession
	}
	if l.cancel != nil {
		l.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	l.mu.Unlock()

	go func() {
		defer close(done)
		defer l.finished(done)

		l.Tick(ctx)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Tick(ctx)
			}
		}
	}()

	return nil
}

// Stop cancels the polling task and waits for it to return. It is a no-op
// when the loop is not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// finished clears the running state when the polling task ends on its own,
// for example because the parent context was cancelled.
func (l *Loop) finished(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != done {
		return
	}
	l.cancel()
	l.cancel, l.done = nil, nil
}

// Logout stops the loop and forgets the session and all view state.
func (l *Loop) Logout() {
	l.Stop()

	l.mu.Lock()
	l.session = nil
	l.state = View{Selection: Idle{}}
	l.mu.Unlock()

	l.changed()
}

// View returns a snapshot of the current state.
func (l *Loop) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// Tick refetches the chat list and, for a selected chat, its messages.
// The fetches run concurrently and failures are only logged.
func (l *Loop) Tick(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Go(func() {
		_ = l.refreshChats(ctx)
	})
	if chatID, ok := l.selectedChat(); ok {
		wg.Go(func() {
			_ = l.refreshMessages(ctx, chatID)
		})
	}
	wg.Wait()
}

func (l *Loop) SetInput(text string) {
	l.mu.Lock()
	l.state.Input = text
	l.mu.Unlock()

	l.changed()
}

// SelectChat opens an existing chat.
func (l *Loop) SelectChat(chatID string) {
	l.mu.Lock()
	l.selectLocked(Selected{ChatID: chatID})
	l.mu.Unlock()

	l.changed()
}

// SelectUser opens the conversation with user: the known chat if the last
// fetched chat list has one, a pending conversation otherwise. The search is cleared.
func (l *Loop) SelectUser(user models.User) Selection {
	l.mu.Lock()
	var sel Selection = Pending{Target: user}
	if c, ok := lo.Find(l.state.Chats, func(c models.PopulatedChat) bool {
		return c.OtherUser.ID == user.ID
	}); ok {
		sel = Selected{ChatID: c.ID}
	}
	l.selectLocked(sel)
	l.state.SearchQuery = ""
	l.state.SearchResults = nil
	l.mu.Unlock()

	l.changed()
	return sel
}

// Search looks up users matching query. Results for a query that is no longer
// current are dropped.
func (l *Loop) Search(ctx context.Context, query string) error {
	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		return ErrNoSession
	}
	userID := l.session.User.ID
	l.state.SearchQuery = query
	if strings.TrimSpace(query) == "" {
		l.state.SearchResults = nil
		l.mu.Unlock()
		l.changed()
		return nil
	}
	l.mu.Unlock()

	users, err := l.backend.SearchUsers(ctx, query, userID)
	if err != nil {
		l.fail(err)
		return err
	}

	l.mu.Lock()
	if l.session == nil || l.session.User.ID != userID || l.state.SearchQuery != query {
		l.mu.Unlock()
		return nil
	}
	l.state.SearchResults = users
	l.mu.Unlock()

	l.changed()
	return nil
}

// Submit sends the current input to the open conversation. The input is
// cleared before the request and restored if the request fails. A pending
// conversation becomes Selected once the server returns its chat id.
func (l *Loop) Submit(ctx context.Context) error {
	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		return ErrNoSession
	}
	text := l.state.Input
	if strings.TrimSpace(text) == "" {
		l.mu.Unlock()
		return nil
	}
	sel := l.state.Selection
	if _, ok := sel.(Idle); ok || sel == nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: no conversation selected", models.ErrValidation)
	}
	senderID := l.session.User.ID
	l.state.Input = ""
	l.state.Err = nil
	l.mu.Unlock()
	l.changed()

	var (
		msg models.Message
		err error
	)
	switch s := sel.(type) {
	case Pending:
		msg, err = l.backend.SendMessage(ctx, senderID, s.Target.ID, text)
	case Selected:
		msg, err = l.backend.AppendMessage(ctx, s.ChatID, senderID, text)
	}
	if err != nil {
		l.log.WarnContext(ctx, "send failed", "user_id", senderID, "error", err)
		l.mu.Lock()
		if l.session == nil || l.session.User.ID != senderID {
			l.mu.Unlock()
			return err
		}
		l.state.Input = text + l.state.Input
		l.state.Err = err
		l.mu.Unlock()
		l.changed()
		return err
	}

	if p, ok := sel.(Pending); ok {
		l.mu.Lock()
		if l.session == nil {
			l.mu.Unlock()
			return nil
		}
		if cur, ok := l.state.Selection.(Pending); ok && cur.Target.ID == p.Target.ID {
			l.selectLocked(Selected{ChatID: msg.ChatID})
		}
		l.mu.Unlock()
		l.changed()
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		_ = l.refreshMessages(ctx, msg.ChatID)
	})
	wg.Go(func() {
		_ = l.refreshChats(ctx)
	})
	wg.Wait()

	return nil
}

func (l *Loop) refreshChats(ctx context.Context) error {
	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		return ErrNoSession
	}
	userID := l.session.User.ID
	l.chatsGen++
	gen := l.chatsGen
	l.mu.Unlock()

	chats, err := l.backend.ListChats(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			l.log.WarnContext(ctx, "chat list poll failed", "user_id", userID, "error", err)
		}
		return err
	}

	l.mu.Lock()
	if l.session == nil || l.session.User.ID != userID || gen <= l.chatsApplied {
		l.mu.Unlock()
		l.log.DebugContext(ctx, "discarding stale chat list", "user_id", userID)
		return nil
	}
	l.chatsApplied = gen
	l.state.Chats = chats
	l.mu.Unlock()

	l.changed()
	return nil
}

func (l *Loop) refreshMessages(ctx context.Context, chatID string) error {
	l.mu.Lock()
	if l.session == nil {
		l.mu.Unlock()
		return ErrNoSession
	}
	l.messagesGen++
	gen := l.messagesGen
	l.mu.Unlock()

	messages, err := l.backend.ListMessages(ctx, chatID)
	if err != nil {
		if ctx.Err() == nil {
			l.log.WarnContext(ctx, "message poll failed", "chat_id", chatID, "error", err)
		}
		return err
	}

	l.mu.Lock()
	sel, ok := l.state.Selection.(Selected)
	if !ok || sel.ChatID != chatID || gen <= l.messagesApplied {
		l.mu.Unlock()
		l.log.DebugContext(ctx, "discarding stale messages", "chat_id", chatID)
		return nil
	}
	l.messagesApplied = gen
	l.state.Messages = messages
	l.mu.Unlock()

	l.changed()
	return nil
}

func (l *Loop) selectedChat() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return "", false
	}
	sel, ok := l.state.Selection.(Selected)
	return sel.ChatID, ok
}

// selectLocked switches the selection and drops the messages of the previous one.
func (l *Loop) selectLocked(sel Selection) {
	if l.state.Selection == sel {
		return
	}
	l.state.Selection = sel
	l.state.Messages = nil
}

func (l *Loop) fail(err error) {
	l.mu.Lock()
	l.state.Err = err
	l.mu.Unlock()
	l.changed()
}

func (l *Loop) changed() {
	if l.onChange == nil {
		return
	}
	l.onChange(l.View())
}
