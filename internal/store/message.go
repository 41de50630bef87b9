package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, sender_id, sender_name, body, message_type, media_url, from_me, is_read, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			media_url = excluded.media_url,
			is_read = excluded.is_read,
			status = excluded.status`,
		m.ChatID, m.MsgID, m.SenderID, m.SenderName, m.Body, m.MessageType, m.MediaURL, m.FromMe, m.IsRead, m.Status, m.Timestamp, now)
	return err
}

// ReplaceMessageID swaps a temporary optimistic id for the server-assigned
// permanent id. If the permanent id already exists (the change feed won the
// race), the placeholder row is deleted instead, so the permanent row is
// never duplicated.
func (db *DB) ReplaceMessageID(chatID, tempID, permanentID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, permanentID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, tempID); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(`UPDATE messages SET msg_id = ?, status = '' WHERE chat_id = ? AND msg_id = ?`, permanentID, chatID, tempID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteMessage removes a message by permanent id. No-op if absent.
func (db *DB) DeleteMessage(chatID, msgID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, sender_id, sender_name, body, message_type, media_url, from_me, is_read, status, timestamp
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.MessageType, &m.MediaURL, &m.FromMe, &m.IsRead, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead flags the given message ids as read. The is_read guard
// makes redundant issuance from overlapping fetch paths a no-op.
func (db *DB) MarkMessagesRead(chatID string, msgIDs []string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range msgIDs {
		if _, err := tx.Exec(`UPDATE messages SET is_read = 1 WHERE chat_id = ? AND msg_id = ? AND is_read = 0`, chatID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MessageCount returns the number of cached messages.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
