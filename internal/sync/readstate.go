package sync

import (
	"context"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UnreadIDs returns the ids of messages that should be marked read when the
// chat is viewed: confirmed messages from other participants that are still
// unread. Placeholders are skipped (the server has never seen their ids).
func UnreadIDs(msgs []store.Message, selfID string) []string {
	var ids []string
	for i := range msgs {
		m := &msgs[i]
		if m.IsRead || m.SenderID == selfID || IsTempID(m.MsgID) {
			continue
		}
		ids = append(ids, m.MsgID)
	}
	return ids
}

// ReadRemote is the backend surface the marker needs.
type ReadRemote interface {
	MarkMessagesRead(ctx context.Context, ids []string) error
}

// Marker issues batched mark-read writes. Marking is fire-and-forget:
// failures are logged and never surfaced to the viewer, and the remote's
// is_read=eq.false guard makes overlapping batches from concurrent fetch
// paths harmless. A small rate limit coalesces bursty chat scrolling.
type Marker struct {
	db     *store.DB
	remote ReadRemote
	logger *zap.Logger
	limit  *rate.Limiter
}

// NewMarker creates a read marker.
func NewMarker(db *store.DB, remote ReadRemote, logger *zap.Logger) *Marker {
	return &Marker{
		db:     db,
		remote: remote,
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// MarkViewed records that the given chat's messages were viewed. The local
// cache is updated synchronously; the remote write runs in the background.
func (mk *Marker) MarkViewed(ctx context.Context, chatID string, msgs []store.Message, selfID string) {
	ids := UnreadIDs(msgs, selfID)
	if len(ids) == 0 {
		return
	}
	if err := mk.db.MarkMessagesRead(chatID, ids); err != nil {
		mk.logger.Warn("mark read locally", zap.Error(err), zap.String("chat_id", chatID))
	}
	// The remote write must survive the viewing request's context.
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := mk.limit.Wait(bg); err != nil {
			return
		}
		if err := mk.remote.MarkMessagesRead(bg, ids); err != nil {
			mk.logger.Warn("mark read remotely", zap.Error(err), zap.Int("count", len(ids)))
		}
	}()
}
