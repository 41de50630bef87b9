package backend

import (
	"encoding/json"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/store"
)

// changeFrame is one change-feed event as framed on the websocket. Old is
// populated for updates and deletes, New for inserts and updates.
type changeFrame struct {
	Table string          `json:"table"`
	Type  string          `json:"type"` // INSERT, UPDATE, DELETE
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// subscribeFrame asks the feed to watch one table scope.
type subscribeFrame struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// decodeChange turns a raw feed frame into a bus event. Malformed or
// unrecognized frames are dropped (ok=false); the feed never raises on them.
func decodeChange(frame changeFrame, selfID string) (bus.Event, bool) {
	now := time.Now()
	switch frame.Table {
	case "messages":
		switch frame.Type {
		case "INSERT", "UPDATE":
			var row MessageRow
			if err := json.Unmarshal(frame.New, &row); err != nil || row.ID == "" {
				return bus.Event{}, false
			}
			kind := "feed.message_insert"
			if frame.Type == "UPDATE" {
				kind = "feed.message_update"
			}
			return bus.Event{Kind: kind, Timestamp: now, Payload: row.ToStoreMessage(selfID)}, true
		case "DELETE":
			var row MessageRow
			if err := json.Unmarshal(frame.Old, &row); err != nil || row.ID == "" {
				return bus.Event{}, false
			}
			return bus.Event{Kind: "feed.message_delete", Timestamp: now, Payload: row.ToStoreMessage(selfID)}, true
		}
	case "chats", "chat_participants":
		// Coarse invalidation: any change to chat rows triggers a refetch.
		return bus.Event{Kind: "feed.chat_changed", Timestamp: now}, true
	case "profiles":
		var row ProfileRow
		if err := json.Unmarshal(frame.New, &row); err != nil || row.ID == "" {
			return bus.Event{}, false
		}
		return bus.Event{Kind: "feed.profile_update", Timestamp: now, Payload: &store.ProfileUpdate{
			UserID:    row.ID,
			Username:  row.Username,
			AvatarURL: row.AvatarURL,
		}}, true
	case "friends":
		raw := frame.New
		kind := "feed.friend_upsert"
		if frame.Type == "DELETE" {
			raw = frame.Old
			kind = "feed.friend_delete"
		}
		var row FriendRow
		if err := json.Unmarshal(raw, &row); err != nil || row.UserID == "" {
			return bus.Event{}, false
		}
		return bus.Event{Kind: kind, Timestamp: now, Payload: row.ToStoreEdge()}, true
	case "stories":
		raw := frame.New
		kind := "feed.story_upsert"
		if frame.Type == "DELETE" {
			raw = frame.Old
			kind = "feed.story_delete"
		}
		var row StoryRow
		if err := json.Unmarshal(raw, &row); err != nil || row.ID == "" {
			return bus.Event{}, false
		}
		return bus.Event{Kind: kind, Timestamp: now, Payload: row.ToStoreStory()}, true
	}
	return bus.Event{}, false
}
