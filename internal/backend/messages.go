package backend

import (
	"context"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// InsertMessage writes a new message and returns the confirmed row carrying
// the server-assigned id.
func (c *Client) InsertMessage(ctx context.Context, row MessageRow) (*MessageRow, error) {
	if row.Content == "" && row.MediaURL == "" {
		return nil, validationError("POST messages", "message needs content or media")
	}
	var out []MessageRow
	if err := c.Insert(ctx, "messages", []MessageRow{row}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &Error{Kind: KindUnknown, Op: "POST messages", Message: "store returned no representation"}
	}
	return &out[0], nil
}

// FetchMessages reads a page of messages for a chat, oldest first within the
// page. A zero before means "latest page".
func (c *Client) FetchMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]MessageRow, error) {
	f := Filter{"chat_id": Eq(chatID)}
	if !before.IsZero() {
		f["created_at"] = Lt(before.UTC().Format(time.RFC3339Nano))
	}
	var rows []MessageRow
	err := c.Select(ctx, "messages", Query{Filter: f, Order: "created_at.desc", Limit: limit}, &rows)
	if err != nil {
		return nil, err
	}
	// Reverse to ascending creation order, matching collection order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// FetchChatMessages reads the latest page of a chat's history as cache rows,
// ascending. This is the engine's backfill read.
func (c *Client) FetchChatMessages(ctx context.Context, chatID string, limit int) ([]store.Message, error) {
	rows, err := c.FetchMessages(ctx, chatID, time.Time{}, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]store.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, *rows[i].ToStoreMessage(c.userID))
	}
	return msgs, nil
}

// MarkMessagesRead flags the given ids as read. The is_read=eq.false guard
// makes the write safe to issue redundantly from concurrent code paths.
func (c *Client) MarkMessagesRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.Update(ctx, "messages",
		Filter{"id": In(ids), "is_read": Eq("false")},
		map[string]bool{"is_read": true}, nil)
}

// EditMessage updates a message's content.
func (c *Client) EditMessage(ctx context.Context, id, content string) error {
	if content == "" {
		return validationError("PATCH messages", "edited content must not be empty")
	}
	return c.Update(ctx, "messages", Filter{"id": Eq(id)}, map[string]string{"content": content}, nil)
}

// DeleteMessage removes a message by id.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.Delete(ctx, "messages", Filter{"id": Eq(id)})
}

// SaveMessage marks an ephemeral message as saved. Unlike read marking this
// is an explicit user action, so failures surface to the caller.
func (c *Client) SaveMessage(ctx context.Context, id string) error {
	return c.Update(ctx, "messages", Filter{"id": Eq(id)}, map[string]bool{"is_saved": true}, nil)
}
