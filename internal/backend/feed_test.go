package backend

import (
	"encoding/json"
	"testing"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

func TestDecodeMessageInsert(t *testing.T) {
	frame := changeFrame{
		Table: "messages",
		Type:  "INSERT",
		New:   json.RawMessage(`{"id":"m1","chat_id":"c1","sender_id":"user-2","content":"hey","message_type":"text","created_at":"2026-08-27T10:00:00Z"}`),
	}

	evt, ok := decodeChange(frame, "user-1")
	if !ok {
		t.Fatal("decodeChange() dropped a valid insert")
	}
	if evt.Kind != "feed.message_insert" {
		t.Errorf("kind = %q, want feed.message_insert", evt.Kind)
	}
	msg, ok := evt.Payload.(*store.Message)
	if !ok {
		t.Fatalf("payload type = %T, want *store.Message", evt.Payload)
	}
	if msg.MsgID != "m1" || msg.ChatID != "c1" || msg.Body != "hey" {
		t.Errorf("message = %+v", msg)
	}
	if msg.FromMe {
		t.Error("FromMe = true for another sender")
	}
	if msg.Status != "" {
		t.Errorf("status = %q, want empty (confirmed rows carry no send state)", msg.Status)
	}
}

func TestDecodeSelfEchoSetsFromMe(t *testing.T) {
	frame := changeFrame{
		Table: "messages",
		Type:  "INSERT",
		New:   json.RawMessage(`{"id":"m2","chat_id":"c1","sender_id":"user-1","content":"mine","message_type":"text","created_at":"2026-08-27T10:00:00Z"}`),
	}

	evt, ok := decodeChange(frame, "user-1")
	if !ok {
		t.Fatal("dropped valid frame")
	}
	if !evt.Payload.(*store.Message).FromMe {
		t.Error("FromMe = false for own echoed message")
	}
}

func TestDecodeMessageDeleteUsesOldRow(t *testing.T) {
	frame := changeFrame{
		Table: "messages",
		Type:  "DELETE",
		Old:   json.RawMessage(`{"id":"m1","chat_id":"c1"}`),
	}

	evt, ok := decodeChange(frame, "user-1")
	if !ok {
		t.Fatal("dropped valid delete")
	}
	if evt.Kind != "feed.message_delete" {
		t.Errorf("kind = %q, want feed.message_delete", evt.Kind)
	}
	msg := evt.Payload.(*store.Message)
	if msg.MsgID != "m1" || msg.ChatID != "c1" {
		t.Errorf("delete payload = %+v", msg)
	}
}

func TestDecodeMalformedDropped(t *testing.T) {
	frames := []changeFrame{
		{Table: "messages", Type: "INSERT", New: json.RawMessage(`{invalid`)},
		{Table: "messages", Type: "INSERT", New: json.RawMessage(`{"chat_id":"c1"}`)}, // no id
		{Table: "unknown_table", Type: "INSERT", New: json.RawMessage(`{}`)},
		{Table: "messages", Type: "TRUNCATE"},
	}
	for i, frame := range frames {
		if _, ok := decodeChange(frame, "user-1"); ok {
			t.Errorf("frame %d: malformed event was not dropped", i)
		}
	}
}

func TestDecodeChatChangeIsCoarse(t *testing.T) {
	for _, table := range []string{"chats", "chat_participants"} {
		evt, ok := decodeChange(changeFrame{Table: table, Type: "UPDATE"}, "user-1")
		if !ok {
			t.Fatalf("dropped %s change", table)
		}
		if evt.Kind != "feed.chat_changed" {
			t.Errorf("kind = %q, want feed.chat_changed", evt.Kind)
		}
	}
}

func TestDecodeProfileUpdate(t *testing.T) {
	frame := changeFrame{
		Table: "profiles",
		Type:  "UPDATE",
		New:   json.RawMessage(`{"id":"user-2","username":"ana","avatar_url":"https://cdn/x.png"}`),
	}
	evt, ok := decodeChange(frame, "user-1")
	if !ok {
		t.Fatal("dropped profile update")
	}
	up := evt.Payload.(*store.ProfileUpdate)
	if up.UserID != "user-2" || up.Username != "ana" {
		t.Errorf("profile update = %+v", up)
	}
}

func TestDecodeFriendAndStoryEvents(t *testing.T) {
	evt, ok := decodeChange(changeFrame{
		Table: "friends", Type: "INSERT",
		New: json.RawMessage(`{"user_id":"a","friend_id":"b","status":"pending"}`),
	}, "b")
	if !ok || evt.Kind != "feed.friend_upsert" {
		t.Errorf("friend insert: kind = %q, ok = %v", evt.Kind, ok)
	}

	evt, ok = decodeChange(changeFrame{
		Table: "stories", Type: "DELETE",
		Old: json.RawMessage(`{"id":"s1","user_id":"a"}`),
	}, "b")
	if !ok || evt.Kind != "feed.story_delete" {
		t.Errorf("story delete: kind = %q, ok = %v", evt.Kind, ok)
	}
	if evt.Payload.(*store.Story).StoryID != "s1" {
		t.Errorf("story payload = %+v", evt.Payload)
	}
}
