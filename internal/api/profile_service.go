package api

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/backend"
)

// AvatarUploader is the slice of the media uploader the profile service needs.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID string, data []byte) (string, error)
}

// ProfileService manages the local user's own profile row.
type ProfileService struct {
	profiles *backend.Profiles
	uploader AvatarUploader // nil when no media bucket is configured
	selfID   string
	logger   *zap.Logger
}

// NewProfileService creates a profile service.
func NewProfileService(profiles *backend.Profiles, uploader AvatarUploader, selfID string, logger *zap.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, uploader: uploader, selfID: selfID, logger: logger}
}

// Avatar replaces the user's avatar: the image is downscaled, written to the
// object store under the stable per-user key and the profile row repointed.
func (s *ProfileService) Avatar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.ImageBase64 == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image_base64 is required"})
		return
	}
	if s.uploader == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no media bucket configured"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image_base64 is not valid base64"})
		return
	}
	url, err := s.uploader.UploadAvatar(r.Context(), s.selfID, data)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.profiles.SetAvatar(r.Context(), s.selfID, url); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}
