package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, peer_id, peer_name, peer_avatar_url, is_pinned, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			peer_id = excluded.peer_id,
			peer_name = excluded.peer_name,
			peer_avatar_url = excluded.peer_avatar_url,
			is_pinned = excluded.is_pinned,
			unread_count = excluded.unread_count,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			updated_at = excluded.updated_at`,
		c.ChatID, c.PeerID, c.PeerName, c.PeerAvatarURL, c.IsPinned, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// TouchChatLastMessage advances a chat's last-message fields without
// clobbering peer metadata. Used on message ingest, where only the preview
// is known.
func (db *DB) TouchChatLastMessage(chatID, preview string, at int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			updated_at = excluded.updated_at`,
		chatID, at, preview, now)
	return err
}

// MergeChatProfile applies a targeted peer-profile update (name/avatar) in
// place, avoiding a full refetch of the chat list.
func (db *DB) MergeChatProfile(peerID, peerName, avatarURL string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE chats SET
			peer_name = CASE WHEN ? != '' THEN ? ELSE peer_name END,
			peer_avatar_url = CASE WHEN ? != '' THEN ? ELSE peer_avatar_url END,
			updated_at = ?
		WHERE peer_id = ?`,
		peerName, peerName, avatarURL, avatarURL, now, peerID)
	return err
}

// ListChats returns chats sorted pinned-first, then by last message
// timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, peer_id, peer_name, peer_avatar_url, is_pinned, unread_count, last_message_at, last_message_preview
		FROM chats
		ORDER BY is_pinned DESC, last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.PeerID, &c.PeerName, &c.PeerAvatarURL, &c.IsPinned, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or nil if absent.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, peer_id, peer_name, peer_avatar_url, is_pinned, unread_count, last_message_at, last_message_preview
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.PeerID, &c.PeerName, &c.PeerAvatarURL, &c.IsPinned, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetChatPinned toggles the pinned flag for a chat.
func (db *DB) SetChatPinned(chatID string, pinned bool) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET is_pinned = ?, updated_at = ? WHERE chat_id = ?`, pinned, now, chatID)
	return err
}

// ChatCount returns the number of cached chats.
func (db *DB) ChatCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}
