package sync

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/store"
	"go.uber.org/zap"
)

// hydrateLimit bounds how much history a collection loads on first access.
const hydrateLimit = 200

// backfillChatLimit bounds how many chats the startup backfill walks.
const backfillChatLimit = 100

// Remote is the backend surface the engine reads from: the coarse chat
// refetch plus the startup backfill reads.
type Remote interface {
	FetchChats(ctx context.Context) ([]store.Chat, error)
	FetchChatMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error)
	FetchFriends(ctx context.Context) ([]store.FriendEdge, error)
	FetchStories(ctx context.Context) ([]store.Story, error)
}

// Engine drives the reconciliation. It subscribes to "feed.*" events on the
// bus, applies them to the per-chat collections, persists confirmed rows to
// the local store and republishes "message."/"chat."/"friend."/"story."
// events for API watchers.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	remote Remote
	logger *zap.Logger
	selfID string

	mu     sync.Mutex
	cols   map[string]*Collection
	cancel context.CancelFunc
}

// NewEngine creates a sync engine.
func NewEngine(db *store.DB, b *bus.Bus, remote Remote, selfID string, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		remote: remote,
		logger: logger,
		selfID: selfID,
		cols:   make(map[string]*Collection),
	}
}

// Start subscribes to change-feed events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("feed.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Backfill seeds the cache from the durable store: the chat overview, the
// recent history of every visible chat, friend edges and active stories.
// Everything lands through idempotent upserts, so running it against a warm
// cache, or while feed events are streaming in, converges on the same state.
func (e *Engine) Backfill(ctx context.Context) error {
	if err := e.refreshChats(ctx); err != nil {
		return err
	}

	chats, err := e.db.ListChats(backfillChatLimit, 0)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	for i := range chats {
		chatID := chats[i].ChatID
		msgs, err := e.remote.FetchChatMessages(ctx, chatID, hydrateLimit)
		if err != nil {
			return fmt.Errorf("backfill chat %s: %w", chatID, err)
		}
		for j := range msgs {
			if err := e.db.UpsertMessage(&msgs[j]); err != nil {
				return fmt.Errorf("backfill message %s: %w", msgs[j].MsgID, err)
			}
		}
		// Hydrate skips ids the collection already holds, so a live
		// collection keeps any in-flight placeholders.
		e.Collection(chatID).Hydrate(msgs)
		e.publish("message.upserted", map[string]string{"chat_id": chatID})
	}

	edges, err := e.remote.FetchFriends(ctx)
	if err != nil {
		return fmt.Errorf("backfill friends: %w", err)
	}
	for i := range edges {
		if err := e.db.UpsertFriendEdge(&edges[i]); err != nil {
			return fmt.Errorf("backfill friend edge: %w", err)
		}
	}
	if len(edges) > 0 {
		e.publish("friend.updated", nil)
	}

	stories, err := e.remote.FetchStories(ctx)
	if err != nil {
		return fmt.Errorf("backfill stories: %w", err)
	}
	for i := range stories {
		if err := e.db.UpsertStory(&stories[i]); err != nil {
			return fmt.Errorf("backfill story %s: %w", stories[i].StoryID, err)
		}
	}
	if len(stories) > 0 {
		e.publish("story.updated", nil)
	}

	e.logger.Info("backfill complete",
		zap.Int("chats", len(chats)), zap.Int("friends", len(edges)), zap.Int("stories", len(stories)))
	return nil
}

// Stop stops the engine. Events arriving after Stop are dropped by the bus;
// nothing in flight is applied to a torn-down engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Collection returns the chat's in-memory collection, hydrating it from the
// cache on first access.
func (e *Engine) Collection(chatID string) *Collection {
	e.mu.Lock()
	defer e.mu.Unlock()

	col, ok := e.cols[chatID]
	if ok {
		return col
	}
	col = NewCollection()
	msgs, err := e.db.ListMessages(chatID, 0, hydrateLimit)
	if err != nil {
		e.logger.Warn("hydrate collection", zap.Error(err), zap.String("chat_id", chatID))
	} else {
		// ListMessages is newest-first; collections order ascending.
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
		col.Hydrate(msgs)
	}
	e.cols[chatID] = col
	return col
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "feed.message_insert":
		if m, ok := evt.Payload.(*store.Message); ok {
			if err := e.ingestInsert(m); err != nil {
				e.logger.Error("ingest insert", zap.Error(err), zap.String("msg_id", m.MsgID))
			}
		}
	case "feed.message_update":
		if m, ok := evt.Payload.(*store.Message); ok {
			if err := e.ingestUpdate(m); err != nil {
				e.logger.Error("ingest update", zap.Error(err), zap.String("msg_id", m.MsgID))
			}
		}
	case "feed.message_delete":
		if m, ok := evt.Payload.(*store.Message); ok {
			if err := e.ingestDelete(m); err != nil {
				e.logger.Error("ingest delete", zap.Error(err), zap.String("msg_id", m.MsgID))
			}
		}
	case "feed.chat_changed":
		if err := e.refreshChats(ctx); err != nil {
			e.logger.Error("refresh chats", zap.Error(err))
		}
	case "feed.profile_update":
		if p, ok := evt.Payload.(*store.ProfileUpdate); ok {
			if err := e.db.MergeChatProfile(p.UserID, p.Username, p.AvatarURL); err != nil {
				e.logger.Error("merge profile", zap.Error(err), zap.String("user_id", p.UserID))
			} else {
				e.publish("chat.updated", nil)
			}
		}
	case "feed.friend_upsert":
		if f, ok := evt.Payload.(*store.FriendEdge); ok {
			if err := e.db.UpsertFriendEdge(f); err != nil {
				e.logger.Error("upsert friend edge", zap.Error(err))
			} else {
				e.publish("friend.updated", nil)
			}
		}
	case "feed.friend_delete":
		if f, ok := evt.Payload.(*store.FriendEdge); ok {
			if err := e.db.DeleteFriendEdge(f.UserID, f.FriendID); err != nil {
				e.logger.Error("delete friend edge", zap.Error(err))
			} else {
				e.publish("friend.updated", nil)
			}
		}
	case "feed.story_upsert":
		if s, ok := evt.Payload.(*store.Story); ok {
			if err := e.db.UpsertStory(s); err != nil {
				e.logger.Error("upsert story", zap.Error(err), zap.String("story_id", s.StoryID))
			} else {
				e.publish("story.updated", nil)
			}
		}
	case "feed.story_delete":
		if s, ok := evt.Payload.(*store.Story); ok {
			if err := e.db.DeleteStory(s.StoryID); err != nil {
				e.logger.Error("delete story", zap.Error(err), zap.String("story_id", s.StoryID))
			} else {
				e.publish("story.updated", nil)
			}
		}
	}
}

// ingestInsert reconciles a confirmed insert into the collection and the
// cache. Adoption of an optimistic placeholder rewrites the cached row's id
// in place so the cache never holds both the placeholder and the confirmed
// row.
func (e *Engine) ingestInsert(m *store.Message) error {
	// Not every producer fills FromMe; the sender is authoritative.
	m.FromMe = m.SenderID == e.selfID
	col := e.Collection(m.ChatID)
	res, tempID := col.ApplyInsert(m)
	switch res {
	case ApplyIgnored:
		return nil
	case ApplyAdopted:
		if err := e.db.ReplaceMessageID(m.ChatID, tempID, m.MsgID); err != nil {
			return fmt.Errorf("replace message id: %w", err)
		}
	}
	if err := e.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if err := e.db.TouchChatLastMessage(m.ChatID, truncate(m.Body, 100), m.Timestamp); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	e.publish("message.upserted", map[string]string{"chat_id": m.ChatID, "msg_id": m.MsgID})
	return nil
}

func (e *Engine) ingestUpdate(m *store.Message) error {
	m.FromMe = m.SenderID == e.selfID
	col := e.Collection(m.ChatID)
	if col.ApplyUpdate(m) == ApplyIgnored {
		return nil
	}
	if err := e.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	e.publish("message.upserted", map[string]string{"chat_id": m.ChatID, "msg_id": m.MsgID})
	return nil
}

func (e *Engine) ingestDelete(m *store.Message) error {
	col := e.Collection(m.ChatID)
	col.ApplyDelete(m.MsgID)
	if err := e.db.DeleteMessage(m.ChatID, m.MsgID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	e.publish("message.deleted", map[string]string{"chat_id": m.ChatID, "msg_id": m.MsgID})
	return nil
}

// refreshChats refetches the chat overview on coarse invalidation, dedupes
// it and rewrites the cached chat list.
func (e *Engine) refreshChats(ctx context.Context) error {
	raw, err := e.remote.FetchChats(ctx)
	if err != nil {
		return fmt.Errorf("fetch chats: %w", err)
	}
	chats := DedupeChats(raw)
	for i := range chats {
		if err := e.db.UpsertChat(&chats[i]); err != nil {
			return fmt.Errorf("upsert chat %s: %w", chats[i].ChatID, err)
		}
	}
	e.publish("chat.updated", map[string]int{"count": len(chats)})
	return nil
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
