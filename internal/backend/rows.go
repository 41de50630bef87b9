package backend

import (
	"time"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// MessageRow mirrors the messages table schema.
type MessageRow struct {
	ID          string    `json:"id,omitempty"`
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	MediaURL    string    `json:"media_url,omitempty"`
	IsRead      bool      `json:"is_read"`
	IsSaved     bool      `json:"is_saved,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ToStoreMessage converts a backend row into the cache representation.
// selfID determines FromMe; Status stays empty because confirmed rows carry
// no local send state.
func (r *MessageRow) ToStoreMessage(selfID string) *store.Message {
	return &store.Message{
		ChatID:      r.ChatID,
		MsgID:       r.ID,
		SenderID:    r.SenderID,
		Body:        r.Content,
		MessageType: r.MessageType,
		MediaURL:    r.MediaURL,
		FromMe:      r.SenderID == selfID,
		IsRead:      r.IsRead,
		Timestamp:   r.CreatedAt.UnixMilli(),
	}
}

// ProfileRow mirrors the profiles table schema.
type ProfileRow struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatOverviewRow is one raw chat row as seen by the current user. The same
// peer may appear in several rows (historical duplicate chats); the sync
// layer deduplicates before anything reaches the API.
type ChatOverviewRow struct {
	ChatID      string      `json:"chat_id"`
	PeerID      string      `json:"peer_id"`
	UnreadCount int         `json:"unread_count"`
	IsPinned    bool        `json:"is_pinned"`
	Peer        *ProfileRow `json:"peer,omitempty"`
	LastMessage *MessageRow `json:"last_message,omitempty"`
}

// ToStoreChat converts a raw overview row into the cache representation.
func (r *ChatOverviewRow) ToStoreChat() *store.Chat {
	c := &store.Chat{
		ChatID:      r.ChatID,
		PeerID:      r.PeerID,
		UnreadCount: r.UnreadCount,
		IsPinned:    r.IsPinned,
	}
	if r.Peer != nil {
		c.PeerName = r.Peer.Username
		c.PeerAvatarURL = r.Peer.AvatarURL
	}
	if r.LastMessage != nil {
		c.LastMessageAt = r.LastMessage.CreatedAt.UnixMilli()
		c.LastMessagePreview = r.LastMessage.Content
	}
	return c
}

// FriendRow mirrors the friends table schema (a directed edge).
type FriendRow struct {
	UserID   string `json:"user_id"`
	FriendID string `json:"friend_id"`
	Status   string `json:"status"`
}

// ToStoreEdge converts a friend row into the cache representation.
func (r *FriendRow) ToStoreEdge() *store.FriendEdge {
	return &store.FriendEdge{UserID: r.UserID, FriendID: r.FriendID, Status: r.Status}
}

// StoryRow mirrors the stories table schema.
type StoryRow struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"user_id"`
	MediaURL     string    `json:"media_url"`
	MediaType    string    `json:"media_type"`
	Caption      string    `json:"caption,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// ToStoreStory converts a story row into the cache representation.
func (r *StoryRow) ToStoreStory() *store.Story {
	return &store.Story{
		StoryID:      r.ID,
		UserID:       r.UserID,
		MediaURL:     r.MediaURL,
		MediaType:    r.MediaType,
		Caption:      r.Caption,
		LikeCount:    r.LikeCount,
		CommentCount: r.CommentCount,
		CreatedAt:    r.CreatedAt.UnixMilli(),
		ExpiresAt:    r.ExpiresAt.UnixMilli(),
	}
}
