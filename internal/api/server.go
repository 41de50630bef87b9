package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/backend"
)

// Router assembles the daemon control API. It is served over the session's
// Unix socket, so there is no auth layer here: socket permissions are the
// boundary.
func Router(
	session *SessionService,
	chats *ChatService,
	messages *MessageService,
	friends *FriendService,
	stories *StoryService,
	profile *ProfileService,
) *httprouter.Router {
	r := httprouter.New()

	r.GET("/v1/status", session.Status)
	r.POST("/v1/sync", session.ForceSync)
	r.POST("/v1/profile/avatar", profile.Avatar)

	r.GET("/v1/chats", chats.List)
	r.POST("/v1/chats", chats.Create)
	r.GET("/v1/chats/:id", chats.Get)
	r.POST("/v1/chats/:id/pin", chats.Pin)

	r.GET("/v1/chats/:id/messages", messages.List)
	r.POST("/v1/chats/:id/messages", messages.Send)
	r.GET("/v1/search", messages.Search)
	r.PATCH("/v1/messages/:id", messages.Edit)
	r.DELETE("/v1/messages/:id", messages.Delete)
	r.POST("/v1/messages/:id/save", messages.Save)

	r.GET("/v1/friends", friends.List)
	r.POST("/v1/friends", friends.Request)
	r.POST("/v1/friends/:id/respond", friends.Respond)

	r.GET("/v1/stories", stories.List)
	r.POST("/v1/stories", stories.Post)
	r.POST("/v1/stories/:id/view", stories.View)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps backend error kinds onto HTTP statuses; anything else is a
// plain 500.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := http.StatusInternalServerError
	var be *backend.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case backend.KindValidation:
			code = http.StatusBadRequest
		case backend.KindAuthorizationDenied:
			code = http.StatusUnauthorized
		case backend.KindNotFound:
			code = http.StatusNotFound
		case backend.KindConflict:
			code = http.StatusConflict
		case backend.KindTransient:
			code = http.StatusServiceUnavailable
		}
	}
	if code == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func readJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
