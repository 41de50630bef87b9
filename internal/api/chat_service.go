package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/backend"
	"github.com/chatterbox-im/chatterbox/internal/store"
)

// ChatService serves the deduplicated chat list from the local cache and
// forwards chat mutations to the backend.
type ChatService struct {
	db     *store.DB
	client *backend.Client
	logger *zap.Logger
}

// NewChatService creates a chat service.
func NewChatService(db *store.DB, client *backend.Client, logger *zap.Logger) *ChatService {
	return &ChatService{db: db, client: client, logger: logger}
}

type chatJSON struct {
	ChatID             string `json:"chat_id"`
	PeerID             string `json:"peer_id"`
	PeerName           string `json:"peer_name,omitempty"`
	PeerAvatarURL      string `json:"peer_avatar_url,omitempty"`
	IsPinned           bool   `json:"is_pinned"`
	UnreadCount        int    `json:"unread_count"`
	LastMessageAt      int64  `json:"last_message_at"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
}

func toChatJSON(c *store.Chat) chatJSON {
	return chatJSON{
		ChatID:             c.ChatID,
		PeerID:             c.PeerID,
		PeerName:           c.PeerName,
		PeerAvatarURL:      c.PeerAvatarURL,
		IsPinned:           c.IsPinned,
		UnreadCount:        c.UnreadCount,
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
	}
}

// List returns cached chats, pinned first. The cache already holds one chat
// per peer, so no dedup happens on the read path.
func (s *ChatService) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	chats, err := s.db.ListChats(limit, offset)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	out := make([]chatJSON, 0, len(chats))
	for i := range chats {
		out = append(out, toChatJSON(&chats[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

// Get returns one cached chat.
func (s *ChatService) Get(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	c, err := s.db.GetChat(ps.ByName("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat not found"})
		return
	}
	writeJSON(w, http.StatusOK, toChatJSON(c))
}

// Create opens (or reuses) a chat with a peer.
func (s *ChatService) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		PeerID string `json:"peer_id"`
	}
	if err := readJSON(r, &req); err != nil || req.PeerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "peer_id is required"})
		return
	}
	chatID, err := s.client.CreateChat(r.Context(), req.PeerID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"chat_id": chatID})
}

// Pin toggles a chat's pinned flag locally and at the backend.
func (s *ChatService) Pin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	chatID := ps.ByName("id")
	if err := s.db.SetChatPinned(chatID, req.Pinned); err != nil {
		writeError(w, s.logger, err)
		return
	}
	// Remote write is best-effort: the next chat refetch reasserts it.
	go func() {
		if err := s.client.SetChatPinned(context.Background(), chatID, req.Pinned); err != nil {
			s.logger.Warn("pin chat remotely", zap.Error(err), zap.String("chat_id", chatID))
		}
	}()
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": req.Pinned})
}
