package sync

import (
	"sort"
	"sync"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// ApplyResult describes what an insert event did to the collection.
type ApplyResult int

const (
	// ApplyIgnored means the event's id was already present (or, for
	// updates/deletes, the target was unknown) and nothing changed.
	ApplyIgnored ApplyResult = iota
	// ApplyAdopted means a matching optimistic placeholder was replaced by
	// the confirmed record.
	ApplyAdopted
	// ApplyAppended means a new confirmed record was appended.
	ApplyAppended
	// ApplyMerged means an existing record was updated in place.
	ApplyMerged
	// ApplyRemoved means a record was deleted.
	ApplyRemoved
)

// Collection is the ordered in-memory message collection for one chat. It
// reconciles two event sources racing over the same logical message: the
// write path's own result callback and the change feed's echo. Both paths
// are idempotent, so the collection converges to the same state regardless
// of arrival order.
//
// Ordering is creation-time ascending, matching the server's ordering.
type Collection struct {
	mu   sync.Mutex
	msgs []*store.Message
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Hydrate seeds the collection from cached messages (ascending order).
// Already-present ids are skipped, so hydrating after live events is safe.
func (c *Collection) Hydrate(msgs []store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range msgs {
		m := msgs[i]
		if c.find(m.MsgID) >= 0 {
			continue
		}
		c.insertSorted(&m)
	}
}

// BeginOptimistic adds a placeholder for a not-yet-confirmed message. If the
// message carries no id (or a non-temporary one), a fresh temporary id is
// assigned. Returns the placeholder's temporary id.
func (c *Collection) BeginOptimistic(m *store.Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !IsTempID(m.MsgID) {
		m.MsgID = NewTempID()
	}
	m.Status = "sending"
	// Placeholders append: the user's new message belongs at the bottom.
	c.msgs = append(c.msgs, m)
	return m.MsgID
}

// Commit replaces the placeholder identified by tempID with the confirmed
// record, preserving its list position. If the placeholder is gone (a feed
// echo already adopted it), Commit is a no-op when the permanent id exists,
// or a sorted insert when it does not. Idempotent on permanent id.
func (c *Collection) Commit(tempID string, permanent *store.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.find(permanent.MsgID) >= 0 {
		// Feed echo won the race; drop the placeholder if it lingers.
		if i := c.find(tempID); i >= 0 {
			c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
		}
		return
	}
	permanent.Status = ""
	if i := c.find(tempID); i >= 0 {
		c.msgs[i] = permanent
		return
	}
	c.insertSorted(permanent)
}

// Rollback removes the placeholder. It leaves no tombstone: if the write
// actually succeeded after the caller gave up on it, the feed echo can
// still adopt or append the confirmed record later.
func (c *Collection) Rollback(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.find(tempID); i >= 0 {
		c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
	}
}

// ApplyInsert merges an insert event from the change feed.
//
//  1. Known permanent id: ignore (at-least-once delivery).
//  2. Content-matching placeholder from the same sender: adopt it in place,
//     so the sender's own echoed message never shows twice.
//  3. Otherwise: append (the path for other participants' messages).
//
// When adoption happens, the replaced placeholder's temporary id is
// returned so the caller can fix up any id mappings of its own.
func (c *Collection) ApplyInsert(m *store.Message) (ApplyResult, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.find(m.MsgID) >= 0 {
		return ApplyIgnored, ""
	}

	m.Status = ""
	// Oldest matching placeholder first, so two identical in-flight sends
	// resolve in order.
	for i, existing := range c.msgs {
		if IsTempID(existing.MsgID) && existing.SenderID == m.SenderID && existing.Body == m.Body {
			tempID := existing.MsgID
			c.msgs[i] = m
			return ApplyAdopted, tempID
		}
	}

	c.msgs = append(c.msgs, m)
	return ApplyAppended, ""
}

// ApplyUpdate merges an update event by permanent id. Updates never target
// placeholders (an update event necessarily carries a permanent id), and an
// unknown id is ignored: an update implies prior existence, so inserting
// here would resurrect out-of-scope rows.
func (c *Collection) ApplyUpdate(m *store.Message) ApplyResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(m.MsgID)
	if i < 0 || IsTempID(m.MsgID) {
		return ApplyIgnored
	}
	existing := c.msgs[i]
	existing.Body = m.Body
	existing.MediaURL = m.MediaURL
	existing.IsRead = m.IsRead
	return ApplyMerged
}

// ApplyDelete removes the record with the given permanent id. No-op on miss.
func (c *Collection) ApplyDelete(msgID string) ApplyResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(msgID)
	if i < 0 {
		return ApplyIgnored
	}
	c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
	return ApplyRemoved
}

// Messages returns a snapshot of the collection in order.
func (c *Collection) Messages() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = *m
	}
	return out
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *Collection) find(msgID string) int {
	for i, m := range c.msgs {
		if m.MsgID == msgID {
			return i
		}
	}
	return -1
}

// insertSorted places m at its creation-time position. Ties go after
// existing records, keeping insertion stable.
func (c *Collection) insertSorted(m *store.Message) {
	i := sort.Search(len(c.msgs), func(i int) bool {
		return c.msgs[i].Timestamp > m.Timestamp
	})
	c.msgs = append(c.msgs, nil)
	copy(c.msgs[i+1:], c.msgs[i:])
	c.msgs[i] = m
}
