package store

// SearchMessages returns messages whose body contains the query, newest
// first. chatID narrows the search to one chat when non-empty.
func (db *DB) SearchMessages(query, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, sender_id, sender_name, body, message_type, media_url, from_me, is_read, status, timestamp
		FROM messages
		WHERE body LIKE ? AND (? = '' OR chat_id = ?)
		ORDER BY timestamp DESC
		LIMIT ?`, pattern, chatID, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.MessageType, &m.MediaURL, &m.FromMe, &m.IsRead, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Message: m, Snippet: m.Body})
	}
	return results, rows.Err()
}
