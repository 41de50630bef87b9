package sync

import (
	"testing"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

func ids(c *Collection) []string {
	msgs := c.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.MsgID
	}
	return out
}

func TestBeginOptimisticAssignsTempID(t *testing.T) {
	c := NewCollection()
	m := &store.Message{ChatID: "c1", SenderID: "me", Body: "hi", Timestamp: 1000}
	tempID := c.BeginOptimistic(m)

	if !IsTempID(tempID) {
		t.Errorf("tempID = %q, want optimistic- prefix", tempID)
	}
	snap := c.Messages()
	if len(snap) != 1 || snap[0].Status != "sending" {
		t.Fatalf("got %d messages, status %q; want 1 sending", len(snap), snap[0].Status)
	}
}

func TestCommitReplacesInPlace(t *testing.T) {
	c := NewCollection()
	c.Hydrate([]store.Message{{MsgID: "m1", Timestamp: 100}, {MsgID: "m2", Timestamp: 200}})

	tempID := c.BeginOptimistic(&store.Message{SenderID: "me", Body: "hi", Timestamp: 300})
	c.Commit(tempID, &store.Message{MsgID: "srv-1", SenderID: "me", Body: "hi", Timestamp: 300})

	got := ids(c)
	want := []string{"m1", "m2", "srv-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if c.Messages()[2].Status != "" {
		t.Errorf("status = %q, want cleared", c.Messages()[2].Status)
	}
}

func TestCommitAfterAdoptionIsNoOp(t *testing.T) {
	// The concurrent-send race: the feed echo adopts the placeholder before
	// the write path's own result arrives. The late Commit must not create
	// a duplicate.
	c := NewCollection()
	tempID := c.BeginOptimistic(&store.Message{SenderID: "me", Body: "hi", Timestamp: 100})

	res, adopted := c.ApplyInsert(&store.Message{MsgID: "msg-42", SenderID: "me", Body: "hi", Timestamp: 100})
	if res != ApplyAdopted || adopted != tempID {
		t.Fatalf("ApplyInsert = (%v, %q), want adoption of %q", res, adopted, tempID)
	}

	c.Commit(tempID, &store.Message{MsgID: "msg-42", SenderID: "me", Body: "hi", Timestamp: 100})

	if got := ids(c); len(got) != 1 || got[0] != "msg-42" {
		t.Errorf("collection = %v, want exactly [msg-42]", got)
	}
}

func TestCommitWithoutPlaceholderInsertsSorted(t *testing.T) {
	c := NewCollection()
	c.Hydrate([]store.Message{{MsgID: "m1", Timestamp: 100}, {MsgID: "m3", Timestamp: 300}})

	c.Commit("optimistic-gone", &store.Message{MsgID: "m2", Timestamp: 200})

	got := ids(c)
	want := []string{"m1", "m2", "m3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRollbackLeavesNoTombstone(t *testing.T) {
	c := NewCollection()
	tempID := c.BeginOptimistic(&store.Message{SenderID: "me", Body: "hi", Timestamp: 100})
	c.Rollback(tempID)

	if c.Len() != 0 {
		t.Fatalf("len = %d after rollback, want 0", c.Len())
	}

	// The send actually succeeded server-side; the late feed insert must
	// come back as a fresh record, not be suppressed.
	res, _ := c.ApplyInsert(&store.Message{MsgID: "srv-1", SenderID: "me", Body: "hi", Timestamp: 100})
	if res != ApplyAppended || c.Len() != 1 {
		t.Errorf("late insert after rollback: res=%v len=%d, want appended 1", res, c.Len())
	}
}

func TestApplyInsertIdempotent(t *testing.T) {
	c := NewCollection()
	m := &store.Message{MsgID: "m1", SenderID: "peer", Body: "hey", Timestamp: 100}

	if res, _ := c.ApplyInsert(m); res != ApplyAppended {
		t.Fatalf("first insert = %v, want appended", res)
	}
	dup := *m
	if res, _ := c.ApplyInsert(&dup); res != ApplyIgnored {
		t.Errorf("redelivered insert = %v, want ignored", res)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestApplyInsertAdoptsOldestPlaceholder(t *testing.T) {
	c := NewCollection()
	t1 := c.BeginOptimistic(&store.Message{SenderID: "me", Body: "same", Timestamp: 100})
	t2 := c.BeginOptimistic(&store.Message{SenderID: "me", Body: "same", Timestamp: 200})

	_, adopted := c.ApplyInsert(&store.Message{MsgID: "srv-1", SenderID: "me", Body: "same", Timestamp: 100})
	if adopted != t1 {
		t.Errorf("adopted %q, want oldest placeholder %q", adopted, t1)
	}
	_, adopted = c.ApplyInsert(&store.Message{MsgID: "srv-2", SenderID: "me", Body: "same", Timestamp: 200})
	if adopted != t2 {
		t.Errorf("adopted %q, want remaining placeholder %q", adopted, t2)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestApplyInsertNoAdoptionForOtherSender(t *testing.T) {
	c := NewCollection()
	c.BeginOptimistic(&store.Message{SenderID: "me", Body: "same", Timestamp: 100})

	res, _ := c.ApplyInsert(&store.Message{MsgID: "srv-1", SenderID: "peer", Body: "same", Timestamp: 150})
	if res != ApplyAppended {
		t.Errorf("other sender's insert = %v, want appended", res)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2 (placeholder kept)", c.Len())
	}
}

func TestApplyUpdateMergesByIDOnly(t *testing.T) {
	c := NewCollection()
	c.Hydrate([]store.Message{{MsgID: "m1", Body: "old", Timestamp: 100}})

	if res := c.ApplyUpdate(&store.Message{MsgID: "m1", Body: "edited", Timestamp: 100}); res != ApplyMerged {
		t.Fatalf("update = %v, want merged", res)
	}
	if got := c.Messages()[0].Body; got != "edited" {
		t.Errorf("body = %q, want edited", got)
	}

	if res := c.ApplyUpdate(&store.Message{MsgID: "unknown", Body: "x"}); res != ApplyIgnored {
		t.Errorf("unknown update = %v, want ignored", res)
	}
	if c.Len() != 1 {
		t.Errorf("unknown update changed len to %d", c.Len())
	}
}

func TestApplyDeleteNoOpOnMiss(t *testing.T) {
	c := NewCollection()
	c.Hydrate([]store.Message{{MsgID: "m1", Timestamp: 100}})

	if res := c.ApplyDelete("m1"); res != ApplyRemoved {
		t.Fatalf("delete = %v, want removed", res)
	}
	if res := c.ApplyDelete("m1"); res != ApplyIgnored {
		t.Errorf("redelivered delete = %v, want ignored", res)
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestHydrateSkipsKnownIDs(t *testing.T) {
	c := NewCollection()
	c.ApplyInsert(&store.Message{MsgID: "m2", Timestamp: 200})
	c.Hydrate([]store.Message{{MsgID: "m1", Timestamp: 100}, {MsgID: "m2", Timestamp: 200}})

	got := ids(c)
	if len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("collection = %v, want [m1 m2]", got)
	}
}
