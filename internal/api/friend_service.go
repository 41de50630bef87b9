package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/backend"
	"github.com/chatterbox-im/chatterbox/internal/store"
	"github.com/chatterbox-im/chatterbox/internal/sync"
)

// FriendService serves the merged friend view and forwards friend actions.
type FriendService struct {
	db     *store.DB
	client *backend.Client
	selfID string
	logger *zap.Logger
}

// NewFriendService creates a friend service.
func NewFriendService(db *store.DB, client *backend.Client, selfID string, logger *zap.Logger) *FriendService {
	return &FriendService{db: db, client: client, selfID: selfID, logger: logger}
}

// List returns one merged friendship view per peer.
func (s *FriendService) List(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	edges, err := s.db.ListFriendEdges(s.selfID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	views := sync.MergeFriends(s.selfID, edges)
	type friendJSON struct {
		PeerID   string `json:"peer_id"`
		Status   string `json:"status"`
		Outgoing bool   `json:"outgoing"`
	}
	out := make([]friendJSON, 0, len(views))
	for _, v := range views {
		out = append(out, friendJSON{PeerID: v.PeerID, Status: v.Status, Outgoing: v.Outgoing})
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": out})
}

// Request sends a friend request. A duplicate surfaces the backend's
// conflict as 409 rather than being silently deduplicated.
func (s *FriendService) Request(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		FriendID string `json:"friend_id"`
	}
	if err := readJSON(r, &req); err != nil || req.FriendID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "friend_id is required"})
		return
	}
	row, err := s.client.SendFriendRequest(r.Context(), req.FriendID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.db.UpsertFriendEdge(row.ToStoreEdge()); err != nil {
		s.logger.Warn("cache friend edge", zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, map[string]string{"friend_id": row.FriendID, "status": row.Status})
}

// Respond accepts, declines or blocks an incoming request.
func (s *FriendService) Respond(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Status string `json:"status"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	requesterID := ps.ByName("id")
	if err := s.client.RespondFriendRequest(r.Context(), requesterID, req.Status); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.db.UpsertFriendEdge(&store.FriendEdge{UserID: requesterID, FriendID: s.selfID, Status: req.Status}); err != nil {
		s.logger.Warn("cache friend edge", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"peer_id": requesterID, "status": req.Status})
}
