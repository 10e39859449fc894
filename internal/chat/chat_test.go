package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"directchat/internal/models"
	"directchat/internal/storage"
)

type fixture struct {
	svc   *Service
	store *storage.BboltStorage
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{svc: New(store), store: store, clock: time.UnixMilli(1_700_000_000_000)}
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) user(t *testing.T, id, name string) {
	t.Helper()
	if _, err := f.store.UpsertUser(id, name, 0); err != nil {
		t.Fatalf("failed to add user: %v", err)
	}
}

func TestResolveOrCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")

	first, err := f.svc.ResolveOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	second, err := f.svc.ResolveOrCreate(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if first != second {
		t.Errorf("expected the same chat, got %s and %s", first, second)
	}

	if _, err := f.svc.ResolveOrCreate(ctx, "alice", "alice"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for self chat, got %v", err)
	}
	if _, err := f.svc.ResolveOrCreate(ctx, "alice", ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for empty id, got %v", err)
	}
	if _, err := f.svc.ResolveOrCreate(ctx, "alice", "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveOrCreate_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")

	const workers = 20
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Go(func() {
			a, b := "alice", "bob"
			if i%2 == 0 {
				a, b = b, a
			}
			id, err := f.svc.ResolveOrCreate(ctx, a, b)
			if err != nil {
				t.Errorf("ResolveOrCreate failed: %v", err)
				return
			}
			ids[i] = id
		})
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one chat, got %s and %s", ids[0], id)
		}
	}
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")

	msg, err := f.svc.Send(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.ChatID == "" || msg.Content != "hi" || msg.SenderID != "alice" {
		t.Errorf("unexpected message %+v", msg)
	}

	// Same clock value: order falls back to insertion
	reply, err := f.svc.Send(ctx, "bob", "alice", "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply.ChatID != msg.ChatID {
		t.Errorf("expected reply in chat %s, got %s", msg.ChatID, reply.ChatID)
	}

	msgs, err := f.svc.ListByChat(ctx, msg.ChatID)
	if err != nil {
		t.Fatalf("ListByChat failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hi" || msgs[1].Content != "hello" {
		t.Errorf("unexpected history %+v", msgs)
	}
	if msgs[0].Timestamp != msgs[1].Timestamp {
		t.Errorf("expected equal timestamps, got %d and %d", msgs[0].Timestamp, msgs[1].Timestamp)
	}

	again, err := f.svc.ListByChat(ctx, msg.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	for i := range msgs {
		if msgs[i] != again[i] {
			t.Errorf("index %d: repeated read differs: %+v vs %+v", i, msgs[i], again[i])
		}
	}
}

func TestSend_ContentIsStoredVerbatim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")

	inputs := []string{"Tom & Jerry", "2 < 3", "<3", "<script>x</script>", "  padded  "}
	var chatID string
	for _, in := range inputs {
		msg, err := f.svc.Send(ctx, "alice", "bob", in)
		if err != nil {
			t.Fatalf("Send(%q) failed: %v", in, err)
		}
		if msg.Content != in {
			t.Errorf("Send(%q) returned content %q", in, msg.Content)
		}
		chatID = msg.ChatID
	}

	msgs, err := f.svc.ListByChat(ctx, chatID)
	if err != nil {
		t.Fatalf("ListByChat failed: %v", err)
	}
	if len(msgs) != len(inputs) {
		t.Fatalf("expected %d messages, got %d", len(inputs), len(msgs))
	}
	for i, in := range inputs {
		if msgs[i].Content != in {
			t.Errorf("index %d: stored %q, want %q", i, msgs[i].Content, in)
		}
	}
}

func TestSend_EmptyContentCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")

	if _, err := f.svc.Send(ctx, "alice", "bob", "   "); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	chats, err := f.svc.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 0 {
		t.Errorf("expected no chats, got %d", len(chats))
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")
	f.user(t, "carol", "carol")

	chatID, err := f.svc.ResolveOrCreate(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	msg, err := f.svc.Append(ctx, chatID, "bob", "direct")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if msg.ChatID != chatID || msg.Seq != 1 {
		t.Errorf("unexpected message %+v", msg)
	}

	if _, err := f.svc.Append(ctx, chatID, "carol", "intruder"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for non-participant, got %v", err)
	}
	if _, err := f.svc.Append(ctx, "missing", "bob", "hello"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Append(ctx, chatID, "bob", ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for empty content, got %v", err)
	}
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", "alice")
	f.user(t, "bob", "bob")
	f.user(t, "carol", "carol")

	withBob, err := f.svc.Send(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatal(err)
	}
	f.clock = f.clock.Add(time.Second)
	withCarol, err := f.svc.Send(ctx, "carol", "alice", "hey alice")
	if err != nil {
		t.Fatal(err)
	}

	chats, err := f.svc.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != withCarol.ChatID || chats[1].ID != withBob.ChatID {
		t.Errorf("expected carol chat first, got %s, %s", chats[0].ID, chats[1].ID)
	}
	if chats[0].OtherUser.ID != "carol" || chats[1].OtherUser.ID != "bob" {
		t.Errorf("unexpected other users: %s, %s", chats[0].OtherUser.ID, chats[1].OtherUser.ID)
	}
	if chats[0].Version != models.PopulatedChatVersion {
		t.Errorf("expected version %d, got %d", models.PopulatedChatVersion, chats[0].Version)
	}

	// A new message moves the bob chat to the top
	f.clock = f.clock.Add(time.Second)
	if _, err := f.svc.Send(ctx, "alice", "bob", "hi again"); err != nil {
		t.Fatal(err)
	}
	for _, userID := range []string{"alice", "bob"} {
		chats, err := f.svc.ListForUser(ctx, userID)
		if err != nil {
			t.Fatal(err)
		}
		if chats[0].ID != withBob.ChatID {
			t.Errorf("%s: expected bob chat first, got %s", userID, chats[0].ID)
		}
		if chats[0].LastMessage == nil || chats[0].LastMessage.Content != "hi again" {
			t.Errorf("%s: unexpected last message %+v", userID, chats[0].LastMessage)
		}
		if chats[0].UpdatedAt != f.clock.UnixMilli() {
			t.Errorf("%s: expected UpdatedAt %d, got %d", userID, f.clock.UnixMilli(), chats[0].UpdatedAt)
		}
		for _, c := range chats {
			found := false
			for _, p := range c.Participants {
				if p.ID == userID {
					found = true
				}
			}
			if !found {
				t.Errorf("%s listed chat %s without being a participant", userID, c.ID)
			}
		}
	}

	// bob is not in the carol chat
	bobChats, err := f.svc.ListForUser(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(bobChats) != 1 {
		t.Errorf("expected 1 chat for bob, got %d", len(bobChats))
	}

	if _, err := f.svc.ListForUser(ctx, "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
