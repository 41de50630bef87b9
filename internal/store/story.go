package store

import "time"

// UpsertStory inserts or updates a story record.
func (db *DB) UpsertStory(s *Story) error {
	_, err := db.Exec(`
		INSERT INTO stories (story_id, user_id, media_url, media_type, caption, like_count, comment_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(story_id) DO UPDATE SET
			media_url = excluded.media_url,
			like_count = excluded.like_count,
			comment_count = excluded.comment_count,
			expires_at = excluded.expires_at`,
		s.StoryID, s.UserID, s.MediaURL, s.MediaType, s.Caption, s.LikeCount, s.CommentCount, s.CreatedAt, s.ExpiresAt)
	return err
}

// ListActiveStories returns stories that have not yet expired, newest first.
func (db *DB) ListActiveStories(now int64) ([]Story, error) {
	rows, err := db.Query(`
		SELECT story_id, user_id, media_url, media_type, caption, like_count, comment_count, created_at, expires_at
		FROM stories
		WHERE expires_at > ?
		ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stories []Story
	for rows.Next() {
		var s Story
		if err := rows.Scan(&s.StoryID, &s.UserID, &s.MediaURL, &s.MediaType, &s.Caption, &s.LikeCount, &s.CommentCount, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// RecordStoryView appends a viewer to a story. Idempotent: viewing the same
// story twice neither errors nor double counts.
func (db *DB) RecordStoryView(storyID, viewerID string) error {
	_, err := db.Exec(`
		INSERT INTO story_viewers (story_id, viewer_id, viewed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(story_id, viewer_id) DO NOTHING`,
		storyID, viewerID, time.Now().UnixMilli())
	return err
}

// StoryViewerCount returns the number of distinct viewers for a story.
func (db *DB) StoryViewerCount(storyID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM story_viewers WHERE story_id = ?`, storyID).Scan(&n)
	return n, err
}

// PurgeExpiredStories deletes stories (and their viewer rows) whose expiry
// has passed. Returns the number of stories removed.
func (db *DB) PurgeExpiredStories(now int64) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM story_viewers WHERE story_id IN
			(SELECT story_id FROM stories WHERE expires_at <= ?)`, now); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM stories WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteStory removes a story and its viewer rows. No-op if absent.
func (db *DB) DeleteStory(storyID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM story_viewers WHERE story_id = ?`, storyID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM stories WHERE story_id = ?`, storyID); err != nil {
		return err
	}
	return tx.Commit()
}
