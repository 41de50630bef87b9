package backend

import (
	"context"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// storyTTL is how long a story stays visible after creation.
const storyTTL = 24 * time.Hour

// InsertStory publishes a story; the expiry is fixed at creation time.
func (c *Client) InsertStory(ctx context.Context, mediaURL, mediaType, caption string) (*StoryRow, error) {
	if mediaURL == "" {
		return nil, validationError("POST stories", "story needs media")
	}
	now := time.Now().UTC()
	row := StoryRow{
		UserID:    c.userID,
		MediaURL:  mediaURL,
		MediaType: mediaType,
		Caption:   caption,
		CreatedAt: now,
		ExpiresAt: now.Add(storyTTL),
	}
	var out []StoryRow
	if err := c.Insert(ctx, "stories", []StoryRow{row}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &Error{Kind: KindUnknown, Op: "POST stories", Message: "store returned no representation"}
	}
	return &out[0], nil
}

// FetchActiveStories reads stories that have not yet expired.
func (c *Client) FetchActiveStories(ctx context.Context) ([]StoryRow, error) {
	var rows []StoryRow
	err := c.Select(ctx, "stories", Query{
		Filter: Filter{"expires_at": Gt(time.Now().UTC().Format(time.RFC3339Nano))},
		Order:  "created_at.desc",
	}, &rows)
	return rows, err
}

// FetchStories reads the unexpired stories as cache rows.
func (c *Client) FetchStories(ctx context.Context) ([]store.Story, error) {
	rows, err := c.FetchActiveStories(ctx)
	if err != nil {
		return nil, err
	}
	stories := make([]store.Story, 0, len(rows))
	for i := range rows {
		stories = append(stories, *rows[i].ToStoreStory())
	}
	return stories, nil
}

// RecordStoryView appends the current user to a story's viewer set.
// Idempotent: the uniqueness conflict from a repeat view is swallowed.
func (c *Client) RecordStoryView(ctx context.Context, storyID string) error {
	err := c.Insert(ctx, "story_viewers", map[string]string{
		"story_id":  storyID,
		"viewer_id": c.userID,
	}, nil)
	if IsConflict(err) {
		return nil
	}
	return err
}
