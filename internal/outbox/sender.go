package outbox

import (
	"context"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/backend"
	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/store"
	"github.com/chatterbox-im/chatterbox/internal/sync"
	"go.uber.org/zap"
)

// MessageWriter is the backend surface for message inserts.
type MessageWriter interface {
	InsertMessage(ctx context.Context, row backend.MessageRow) (*backend.MessageRow, error)
}

// ProfileEnsurer makes sure the sender's profile row exists; used as the
// compensation for writes rejected by the store's profile foreign key.
type ProfileEnsurer interface {
	Ensure(ctx context.Context, userID, username string) error
}

// Collections hands out the per-chat reconciliation collections.
type Collections interface {
	Collection(chatID string) *sync.Collection
}

// Sender drains the outbox: each queued entry becomes an optimistic
// placeholder, a backend insert, and a commit or rollback.
type Sender struct {
	db       *store.DB
	writer   MessageWriter
	profiles ProfileEnsurer
	cols     Collections
	bus      *bus.Bus
	logger   *zap.Logger
	selfID   string
	selfName string
	cancel   context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, writer MessageWriter, profiles ProfileEnsurer, cols Collections, b *bus.Bus, selfID, selfName string, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		writer:   writer,
		profiles: profiles,
		cols:     cols,
		bus:      b,
		logger:   logger,
		selfID:   selfID,
		selfName: selfName,
	}
}

// Start begins polling the outbox for queued entries.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}
	for i := range pending {
		s.send(ctx, &pending[i])
	}
}

// send runs one entry through the optimistic lifecycle. The entry's client
// message id doubles as the placeholder's temporary id, so the change feed
// can adopt the placeholder by content even when the send result is lost.
func (s *Sender) send(ctx context.Context, entry *store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	col := s.cols.Collection(entry.ChatID)
	placeholder := &store.Message{
		ChatID:      entry.ChatID,
		MsgID:       entry.ClientMsgID,
		SenderID:    s.selfID,
		SenderName:  s.selfName,
		Body:        entry.Body,
		MessageType: entry.MessageType,
		MediaURL:    entry.MediaURL,
		FromMe:      true,
		Timestamp:   time.Now().UnixMilli(),
	}
	tempID := col.BeginOptimistic(placeholder)
	_ = s.db.UpsertMessage(placeholder)
	s.publish("message.upserted", map[string]string{"chat_id": entry.ChatID, "msg_id": tempID})

	row := backend.MessageRow{
		ChatID:      entry.ChatID,
		SenderID:    s.selfID,
		Content:     entry.Body,
		MessageType: entry.MessageType,
		MediaURL:    entry.MediaURL,
	}
	confirmed, err := s.writer.InsertMessage(ctx, row)
	if backend.IsConflict(err) {
		// The usual cause is a missing profile row behind the sender_id
		// foreign key. Ensure it exists, then retry the write once.
		s.logger.Warn("write conflict, ensuring profile", zap.String("client_msg_id", tempID))
		if ensureErr := s.profiles.Ensure(ctx, s.selfID, s.selfName); ensureErr != nil {
			s.logger.Error("profile compensation failed", zap.Error(ensureErr))
		} else {
			confirmed, err = s.writer.InsertMessage(ctx, row)
		}
	}
	if err != nil {
		s.logger.Error("send failed", zap.Error(err), zap.String("client_msg_id", tempID))
		col.Rollback(tempID)
		_ = s.db.DeleteMessage(entry.ChatID, tempID)
		_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		s.publish("message.send_failed", map[string]string{
			"chat_id":       entry.ChatID,
			"client_msg_id": tempID,
			"error":         err.Error(),
		})
		return
	}

	msg := confirmed.ToStoreMessage(s.selfID)
	col.Commit(tempID, msg)
	if err := s.db.ReplaceMessageID(entry.ChatID, tempID, msg.MsgID); err != nil {
		s.logger.Error("failed to replace message id", zap.Error(err), zap.String("client_msg_id", tempID))
	}
	_ = s.db.UpsertMessage(msg)
	if err := s.db.MarkOutboxSent(entry.ClientMsgID, msg.MsgID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", tempID))
	}

	s.logger.Info("message sent", zap.String("client_msg_id", tempID), zap.String("server_msg_id", msg.MsgID))
	s.publish("message.send_ack", map[string]string{
		"chat_id":       entry.ChatID,
		"client_msg_id": tempID,
		"server_msg_id": msg.MsgID,
	})
}

func (s *Sender) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
