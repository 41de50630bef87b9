package store

import "time"

// UpsertFriendEdge inserts or updates a directed friendship edge.
func (db *DB) UpsertFriendEdge(e *FriendEdge) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO friends (user_id, friend_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, friend_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		e.UserID, e.FriendID, e.Status, now)
	return err
}

// DeleteFriendEdge removes a directed edge. No-op if absent.
func (db *DB) DeleteFriendEdge(userID, friendID string) error {
	_, err := db.Exec(`DELETE FROM friends WHERE user_id = ? AND friend_id = ?`, userID, friendID)
	return err
}

// ListFriendEdges returns every cached edge that involves the given user on
// either side. Bidirectional visibility is derived by the sync layer.
func (db *DB) ListFriendEdges(userID string) ([]FriendEdge, error) {
	rows, err := db.Query(`
		SELECT user_id, friend_id, status FROM friends
		WHERE user_id = ? OR friend_id = ?
		ORDER BY updated_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var edges []FriendEdge
	for rows.Next() {
		var e FriendEdge
		if err := rows.Scan(&e.UserID, &e.FriendID, &e.Status); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
