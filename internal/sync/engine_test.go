package sync

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeRemote struct {
	chats   []store.Chat
	history map[string][]store.Message
	friends []store.FriendEdge
	stories []store.Story
	calls   int
}

func (f *fakeRemote) FetchChats(context.Context) ([]store.Chat, error) {
	f.calls++
	return f.chats, nil
}

func (f *fakeRemote) FetchChatMessages(_ context.Context, chatID string, _ int) ([]store.Message, error) {
	return f.history[chatID], nil
}

func (f *fakeRemote) FetchFriends(context.Context) ([]store.FriendEdge, error) {
	return f.friends, nil
}

func (f *fakeRemote) FetchStories(context.Context) ([]store.Story, error) {
	return f.stories, nil
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

func TestEngineInsertPersistsAndPublishes(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, &fakeRemote{}, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(bus.Event{Kind: "feed.message_insert", Timestamp: time.Now(), Payload: &store.Message{
		ChatID: "c1", MsgID: "m1", SenderID: "peer", Body: "hello", MessageType: "text", Timestamp: 1000,
	}})

	waitEvent(t, ch, "message.upserted")

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Fatalf("got %d messages, want 1 with body=hello", len(msgs))
	}
	chat, err := db.GetChat("c1")
	if err != nil || chat == nil {
		t.Fatalf("chat not touched: %v", err)
	}
	if chat.LastMessageAt != 1000 {
		t.Errorf("last_message_at = %d, want 1000", chat.LastMessageAt)
	}
}

func TestEngineInsertAdoptsPlaceholder(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, &fakeRemote{}, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	col := e.Collection("c1")
	placeholder := &store.Message{ChatID: "c1", SenderID: "me", Body: "hi", FromMe: true, Timestamp: 100}
	tempID := col.BeginOptimistic(placeholder)
	if err := db.UpsertMessage(placeholder); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(bus.Event{Kind: "feed.message_insert", Timestamp: time.Now(), Payload: &store.Message{
		ChatID: "c1", MsgID: "srv-1", SenderID: "me", Body: "hi", FromMe: true, Timestamp: 100,
	}})
	waitEvent(t, ch, "message.upserted")

	if got := ids(col); len(got) != 1 || got[0] != "srv-1" {
		t.Errorf("collection = %v, want [srv-1]", got)
	}
	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "srv-1" {
		t.Errorf("cache = %d rows first id %q, want single srv-1", len(msgs), msgs[0].MsgID)
	}
	if IsTempID(tempID) && msgs[0].MsgID == tempID {
		t.Error("placeholder id survived adoption")
	}
}

func TestEngineUpdateAndDelete(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, &fakeRemote{}, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	insert := &store.Message{ChatID: "c1", MsgID: "m1", SenderID: "peer", Body: "v1", Timestamp: 100}
	b.Publish(bus.Event{Kind: "feed.message_insert", Timestamp: time.Now(), Payload: insert})
	waitEvent(t, ch, "message.upserted")

	edited := *insert
	edited.Body = "v2"
	b.Publish(bus.Event{Kind: "feed.message_update", Timestamp: time.Now(), Payload: &edited})
	waitEvent(t, ch, "message.upserted")

	msgs, _ := db.ListMessages("c1", 0, 10)
	if msgs[0].Body != "v2" {
		t.Errorf("body = %q, want v2", msgs[0].Body)
	}

	b.Publish(bus.Event{Kind: "feed.message_delete", Timestamp: time.Now(), Payload: insert})
	waitEvent(t, ch, "message.deleted")

	msgs, _ = db.ListMessages("c1", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("cache has %d messages after delete, want 0", len(msgs))
	}
	if e.Collection("c1").Len() != 0 {
		t.Error("collection not emptied by delete")
	}
}

func TestEngineUpdateUnknownIgnored(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, &fakeRemote{}, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	b.Publish(bus.Event{Kind: "feed.message_update", Timestamp: time.Now(), Payload: &store.Message{
		ChatID: "c1", MsgID: "ghost", Body: "x", Timestamp: 100,
	}})
	time.Sleep(50 * time.Millisecond)

	n, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("update of unknown id created %d rows", n)
	}
}

func TestEngineChatChangedRefetches(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	lister := &fakeRemote{chats: []store.Chat{
		{ChatID: "c1", PeerID: "alice", UnreadCount: 1, LastMessageAt: 100},
		{ChatID: "c2", PeerID: "alice", UnreadCount: 2, LastMessageAt: 200},
	}}
	e := NewEngine(db, b, lister, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Publish(bus.Event{Kind: "feed.chat_changed", Timestamp: time.Now()})
	waitEvent(t, ch, "chat.updated")

	if lister.calls != 1 {
		t.Errorf("lister calls = %d, want 1", lister.calls)
	}
	chat, err := db.GetChat("c2")
	if err != nil || chat == nil {
		t.Fatalf("deduped chat missing: %v", err)
	}
	if chat.UnreadCount != 3 {
		t.Errorf("unread = %d, want summed 3", chat.UnreadCount)
	}
}

func TestEngineProfileUpdateMergesWithoutRefetch(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&store.Chat{ChatID: "c1", PeerID: "alice", PeerName: "old"}); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	lister := &fakeRemote{}
	e := NewEngine(db, b, lister, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Publish(bus.Event{Kind: "feed.profile_update", Timestamp: time.Now(), Payload: &store.ProfileUpdate{
		UserID: "alice", Username: "Alice", AvatarURL: "https://cdn/a.png",
	}})
	waitEvent(t, ch, "chat.updated")

	if lister.calls != 0 {
		t.Errorf("profile update triggered %d refetches, want 0", lister.calls)
	}
	chat, _ := db.GetChat("c1")
	if chat.PeerName != "Alice" || chat.PeerAvatarURL != "https://cdn/a.png" {
		t.Errorf("profile not merged: %+v", chat)
	}
}

func TestEngineStoryEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, &fakeRemote{}, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe("story.", 10)
	defer unsub()

	now := time.Now().UnixMilli()
	b.Publish(bus.Event{Kind: "feed.story_upsert", Timestamp: time.Now(), Payload: &store.Story{
		StoryID: "s1", UserID: "alice", MediaURL: "https://cdn/s.jpg", MediaType: "image",
		CreatedAt: now, ExpiresAt: now + 1000,
	}})
	waitEvent(t, ch, "story.updated")

	stories, err := db.ListActiveStories(now)
	if err != nil || len(stories) != 1 {
		t.Fatalf("stories = %d (%v), want 1", len(stories), err)
	}

	b.Publish(bus.Event{Kind: "feed.story_delete", Timestamp: time.Now(), Payload: &store.Story{StoryID: "s1"}})
	waitEvent(t, ch, "story.updated")

	stories, _ = db.ListActiveStories(now)
	if len(stories) != 0 {
		t.Errorf("stories = %d after delete, want 0", len(stories))
	}
}

func TestSweeperPurgesExpired(t *testing.T) {
	db := testDB(t)
	now := time.Now().UnixMilli()
	if err := db.UpsertStory(&store.Story{StoryID: "dead", UserID: "a", CreatedAt: now - 2000, ExpiresAt: now - 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertStory(&store.Story{StoryID: "live", UserID: "a", CreatedAt: now, ExpiresAt: now + 60_000}); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	ch, unsub := b.Subscribe("story.", 10)
	defer unsub()

	s := NewSweeper(db, b, zap.NewNop())
	s.Sweep()
	waitEvent(t, ch, "story.updated")

	stories, err := db.ListActiveStories(now - 10_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(stories) != 1 || stories[0].StoryID != "live" {
		t.Errorf("surviving stories = %v, want only live", stories)
	}
}

func TestEngineBackfillSeedsCache(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	now := time.Now().UnixMilli()
	remote := &fakeRemote{
		chats: []store.Chat{{ChatID: "c1", PeerID: "alice", UnreadCount: 1, LastMessageAt: 200}},
		history: map[string][]store.Message{
			"c1": {
				{ChatID: "c1", MsgID: "m1", SenderID: "alice", Body: "first", Timestamp: 100},
				{ChatID: "c1", MsgID: "m2", SenderID: "me", Body: "second", FromMe: true, Timestamp: 200},
			},
		},
		friends: []store.FriendEdge{{UserID: "me", FriendID: "alice", Status: "accepted"}},
		stories: []store.Story{{StoryID: "s1", UserID: "alice", MediaURL: "https://cdn/s.jpg", CreatedAt: now, ExpiresAt: now + 60_000}},
	}
	e := NewEngine(db, b, remote, "me", zap.NewNop())

	if err := e.Backfill(context.Background()); err != nil {
		t.Fatal(err)
	}

	chat, err := db.GetChat("c1")
	if err != nil || chat == nil {
		t.Fatalf("chat not seeded: %v", err)
	}
	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("cached %d messages, want 2", len(msgs))
	}
	if got := ids(e.Collection("c1")); len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("collection = %v, want ascending [m1 m2]", got)
	}
	edges, err := db.ListFriendEdges("me")
	if err != nil || len(edges) != 1 {
		t.Fatalf("friend edges = %d (%v), want 1", len(edges), err)
	}
	stories, err := db.ListActiveStories(now)
	if err != nil || len(stories) != 1 {
		t.Fatalf("stories = %d (%v), want 1", len(stories), err)
	}

	// A second run converges without duplicating anything.
	if err := e.Backfill(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.MessageCount(); n != 2 {
		t.Errorf("message count after rerun = %d, want 2", n)
	}
	if e.Collection("c1").Len() != 2 {
		t.Errorf("collection len after rerun = %d, want 2", e.Collection("c1").Len())
	}
}

func TestEngineBackfillKeepsPlaceholders(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	remote := &fakeRemote{
		chats: []store.Chat{{ChatID: "c1", PeerID: "alice", LastMessageAt: 100}},
		history: map[string][]store.Message{
			"c1": {{ChatID: "c1", MsgID: "m1", SenderID: "alice", Body: "hi", Timestamp: 100}},
		},
	}
	e := NewEngine(db, b, remote, "me", zap.NewNop())

	col := e.Collection("c1")
	tempID := col.BeginOptimistic(&store.Message{ChatID: "c1", SenderID: "me", Body: "draft", FromMe: true, Timestamp: 200})

	if err := e.Backfill(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := ids(col)
	if len(got) != 2 || got[1] != tempID {
		t.Errorf("collection = %v, want [m1 %s]", got, tempID)
	}
}

func TestEngineInsertDerivesFromMe(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, &fakeRemote{}, "me", zap.NewNop())
	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	// A row for the local user arriving without FromMe set.
	b.Publish(bus.Event{Kind: "feed.message_insert", Timestamp: time.Now(), Payload: &store.Message{
		ChatID: "c1", MsgID: "m1", SenderID: "me", Body: "hi", Timestamp: 100,
	}})
	waitEvent(t, ch, "message.upserted")

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages = %d (%v), want 1", len(msgs), err)
	}
	if !msgs[0].FromMe {
		t.Error("own message cached with FromMe = false")
	}
}

func TestTruncatePreviewKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", 60) // 120 bytes of two-byte runes
	got := truncate(long, 100)
	if len(got) > 100 {
		t.Errorf("truncated to %d bytes, want <= 100", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got[len(got)-3:])
	}
	if short := truncate("hello", 100); short != "hello" {
		t.Errorf("short string changed: %q", short)
	}
}

func TestStoryExpired(t *testing.T) {
	now := time.Now()
	live := &store.Story{ExpiresAt: now.Add(time.Hour).UnixMilli()}
	dead := &store.Story{ExpiresAt: now.Add(-time.Minute).UnixMilli()}
	if StoryExpired(live, now) {
		t.Error("future expiry reported expired")
	}
	if !StoryExpired(dead, now) {
		t.Error("past expiry not reported expired")
	}
}
