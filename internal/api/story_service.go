package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/backend"
	"github.com/chatterbox-im/chatterbox/internal/media"
	"github.com/chatterbox-im/chatterbox/internal/store"
)

// MediaUploader is the slice of the media uploader the story service needs.
type MediaUploader interface {
	Upload(ctx context.Context, folder, filename string, data []byte, opts media.UploadOptions) (string, error)
}

// StoryService serves active stories from the cache and posts new ones.
type StoryService struct {
	db       *store.DB
	client   *backend.Client
	uploader MediaUploader // nil when no media bucket is configured
	selfID   string
	logger   *zap.Logger
}

// NewStoryService creates a story service.
func NewStoryService(db *store.DB, client *backend.Client, uploader MediaUploader, selfID string, logger *zap.Logger) *StoryService {
	return &StoryService{db: db, client: client, uploader: uploader, selfID: selfID, logger: logger}
}

type storyJSON struct {
	StoryID     string `json:"story_id"`
	UserID      string `json:"user_id"`
	MediaURL    string `json:"media_url"`
	MediaType   string `json:"media_type"`
	Caption     string `json:"caption,omitempty"`
	ViewerCount int    `json:"viewer_count"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

// List returns unexpired cached stories with viewer counts.
func (s *StoryService) List(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	stories, err := s.db.ListActiveStories(time.Now().UnixMilli())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	out := make([]storyJSON, 0, len(stories))
	for i := range stories {
		st := &stories[i]
		viewers, _ := s.db.StoryViewerCount(st.StoryID)
		out = append(out, storyJSON{
			StoryID:     st.StoryID,
			UserID:      st.UserID,
			MediaURL:    st.MediaURL,
			MediaType:   st.MediaType,
			Caption:     st.Caption,
			ViewerCount: viewers,
			CreatedAt:   st.CreatedAt,
			ExpiresAt:   st.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": out})
}

// Post publishes a story. Media comes either as an already-hosted URL or as
// base64 payload to run through the object store first.
func (s *StoryService) Post(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		MediaURL    string `json:"media_url"`
		MediaBase64 string `json:"media_base64"`
		Filename    string `json:"filename"`
		MediaType   string `json:"media_type"`
		Caption     string `json:"caption"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	mediaURL := req.MediaURL
	if mediaURL == "" && req.MediaBase64 != "" {
		if s.uploader == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no media bucket configured"})
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.MediaBase64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "media_base64 is not valid base64"})
			return
		}
		mediaURL, err = s.uploader.Upload(r.Context(), "stories", req.Filename, data, media.UploadOptions{})
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
	}
	if mediaURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "story needs media_url or media_base64"})
		return
	}
	if req.MediaType == "" {
		req.MediaType = "image"
	}

	row, err := s.client.InsertStory(r.Context(), mediaURL, req.MediaType, req.Caption)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.db.UpsertStory(row.ToStoreStory()); err != nil {
		s.logger.Warn("cache story", zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, map[string]string{"story_id": row.ID, "media_url": mediaURL})
}

// View records that the local user viewed a story. Viewing twice is a no-op
// on both sides.
func (s *StoryService) View(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	storyID := ps.ByName("id")
	if err := s.client.RecordStoryView(r.Context(), storyID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.db.RecordStoryView(storyID, s.selfID); err != nil {
		s.logger.Warn("cache story view", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"story_id": storyID})
}
