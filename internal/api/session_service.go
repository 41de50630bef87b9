package api

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/status"
	"github.com/chatterbox-im/chatterbox/internal/store"
)

// SessionService reports daemon status and exposes the manual sync trigger.
type SessionService struct {
	sessionName string
	userID      string
	tokenExpiry time.Time
	startedAt   time.Time
	machine     *status.Machine
	bus         *bus.Bus
	db          *store.DB
	logger      *zap.Logger
}

// NewSessionService creates a session service. tokenExpiry is the access
// token's exp claim; zero when the token carries none.
func NewSessionService(sessionName, userID string, tokenExpiry time.Time, machine *status.Machine, b *bus.Bus, db *store.DB, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		userID:      userID,
		tokenExpiry: tokenExpiry,
		startedAt:   time.Now(),
		machine:     machine,
		bus:         b,
		db:          db,
		logger:      logger,
	}
}

type statusResponse struct {
	Session        string `json:"session"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	UptimeMs       int64  `json:"uptime_ms"`
	ChatCount      int    `json:"chat_count"`
	MessageCount   int    `json:"message_count"`
	TokenExpiresAt int64  `json:"token_expires_at,omitempty"`
}

// Status reports the session's runtime state and cache counters.
func (s *SessionService) Status(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	resp := statusResponse{
		Session:  s.sessionName,
		UserID:   s.userID,
		Status:   string(s.machine.Current()),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if !s.tokenExpiry.IsZero() {
		resp.TokenExpiresAt = s.tokenExpiry.UnixMilli()
	}
	if n, err := s.db.ChatCount(); err == nil {
		resp.ChatCount = n
	}
	if n, err := s.db.MessageCount(); err == nil {
		resp.MessageCount = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// ForceSync asks the engine for a full chat refetch, the same path a coarse
// feed invalidation takes.
func (s *SessionService) ForceSync(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.bus.Publish(bus.Event{Kind: "feed.chat_changed", Timestamp: time.Now()})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}
