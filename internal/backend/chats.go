package backend

import (
	"context"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// FetchChatOverview reads the raw chat rows visible to the current user from
// the chat_overview view. Rows are NOT deduplicated here; the sync layer
// collapses duplicate chats per peer.
func (c *Client) FetchChatOverview(ctx context.Context) ([]ChatOverviewRow, error) {
	var rows []ChatOverviewRow
	err := c.Select(ctx, "chat_overview", Query{
		Filter: Filter{"user_id": Eq(c.userID)},
		Order:  "chat_id.asc",
	}, &rows)
	return rows, err
}

// SetChatPinned toggles the pinned flag on a chat participant row.
func (c *Client) SetChatPinned(ctx context.Context, chatID string, pinned bool) error {
	return c.Update(ctx, "chat_participants",
		Filter{"chat_id": Eq(chatID), "user_id": Eq(c.userID)},
		map[string]bool{"is_pinned": pinned}, nil)
}

// CreateChat opens a chat with a peer and returns its id. A Conflict means a
// chat already exists; the caller resolves it from the overview.
func (c *Client) CreateChat(ctx context.Context, peerID string) (string, error) {
	var out []struct {
		ID string `json:"id"`
	}
	err := c.Insert(ctx, "chats", map[string]any{
		"participant_a": c.userID,
		"participant_b": peerID,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", &Error{Kind: KindUnknown, Op: "POST chats", Message: "store returned no representation"}
	}
	return out[0].ID, nil
}

// FetchChats reads the raw chat rows and converts them to the cache
// representation, still one row per underlying chat.
func (c *Client) FetchChats(ctx context.Context) ([]store.Chat, error) {
	rows, err := c.FetchChatOverview(ctx)
	if err != nil {
		return nil, err
	}
	chats := make([]store.Chat, 0, len(rows))
	for i := range rows {
		chats = append(chats, *rows[i].ToStoreChat())
	}
	return chats, nil
}
