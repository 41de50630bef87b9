package api

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/backend"
	"github.com/chatterbox-im/chatterbox/internal/store"
	"github.com/chatterbox-im/chatterbox/internal/sync"
)

// MessageService serves message history from the cache, queues sends through
// the outbox and forwards explicit message actions to the backend.
type MessageService struct {
	db     *store.DB
	client *backend.Client
	marker *sync.Marker
	selfID string
	logger *zap.Logger
}

// NewMessageService creates a message service.
func NewMessageService(db *store.DB, client *backend.Client, marker *sync.Marker, selfID string, logger *zap.Logger) *MessageService {
	return &MessageService{db: db, client: client, marker: marker, selfID: selfID, logger: logger}
}

type messageJSON struct {
	MsgID       string `json:"msg_id"`
	ChatID      string `json:"chat_id"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name,omitempty"`
	Body        string `json:"body"`
	MessageType string `json:"message_type"`
	MediaURL    string `json:"media_url,omitempty"`
	FromMe      bool   `json:"from_me"`
	IsRead      bool   `json:"is_read"`
	Status      string `json:"status,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func toMessageJSON(m *store.Message) messageJSON {
	return messageJSON{
		MsgID:       m.MsgID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Body:        m.Body,
		MessageType: m.MessageType,
		MediaURL:    m.MediaURL,
		FromMe:      m.FromMe,
		IsRead:      m.IsRead,
		Status:      m.Status,
		Timestamp:   m.Timestamp,
	}
}

// List returns a page of cached messages for a chat, oldest first. Viewing
// a page marks its unread messages read, fire-and-forget.
func (s *MessageService) List(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	chatID := ps.ByName("id")
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := s.db.ListMessages(chatID, before, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	// Stored newest-first; the wire order is ascending like the collections.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	s.marker.MarkViewed(r.Context(), chatID, msgs, s.selfID)

	out := make([]messageJSON, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageJSON(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// Send queues a message on the outbox and returns its client id. The actual
// write happens asynchronously; watchers learn the outcome from
// message.send_ack / message.send_failed events and the status endpoint.
func (s *MessageService) Send(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Body        string `json:"body"`
		MessageType string `json:"message_type"`
		MediaURL    string `json:"media_url"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.Body == "" && req.MediaURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message needs body or media_url"})
		return
	}
	if req.MessageType == "" {
		req.MessageType = "text"
	}

	entry := &store.OutboxEntry{
		ClientMsgID: sync.NewTempID(),
		ChatID:      ps.ByName("id"),
		Body:        req.Body,
		MessageType: req.MessageType,
		MediaURL:    req.MediaURL,
	}
	if err := s.db.QueueOutbox(entry); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"client_msg_id": entry.ClientMsgID})
}

// Search runs a substring search over the cached messages.
func (s *MessageService) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := s.db.SearchMessages(q, r.URL.Query().Get("chat_id"), limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	type hit struct {
		Message messageJSON `json:"message"`
		Snippet string      `json:"snippet"`
	}
	out := make([]hit, 0, len(results))
	for i := range results {
		out = append(out, hit{Message: toMessageJSON(&results[i].Message), Snippet: results[i].Snippet})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// Edit changes a sent message's content at the backend; the edit lands in
// the cache when its update event comes back on the feed.
func (s *MessageService) Edit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Body string `json:"body"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	id := ps.ByName("id")
	if sync.IsTempID(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is still sending"})
		return
	}
	if err := s.client.EditMessage(r.Context(), id, req.Body); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg_id": id})
}

// Delete removes a message at the backend.
func (s *MessageService) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if sync.IsTempID(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is still sending"})
		return
	}
	if err := s.client.DeleteMessage(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg_id": id})
}

// Save flags an ephemeral message as saved. This is an explicit action, so
// unlike read marking any failure goes back to the caller.
func (s *MessageService) Save(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if sync.IsTempID(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is still sending"})
		return
	}
	if err := s.client.SaveMessage(r.Context(), id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg_id": id})
}
