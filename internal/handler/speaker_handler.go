package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/speaker"
)

// SpeakerServiceInterface はスピーカーハンドラーが必要とするサービスインターフェース。
type SpeakerServiceInterface interface {
	AddSpeaker(ctx context.Context, eventID, actingUserID, email string, in speaker.Input) (*model.Speaker, error)
	UpdateSpeaker(ctx context.Context, eventID, actingUserID, speakerUserID string, in speaker.Input) (*model.Speaker, error)
	RemoveSpeaker(ctx context.Context, eventID, actingUserID, speakerUserID string) error
	ListSpeakers(ctx context.Context, eventID, actingUserID string) ([]model.SpeakerWithUser, error)
}

// SpeakerHandler はイベントのスピーカー管理のHTTPハンドラー。
type SpeakerHandler struct {
	service SpeakerServiceInterface
}

// NewSpeakerHandler はSpeakerHandlerを生成する。
func NewSpeakerHandler(service SpeakerServiceInterface) *SpeakerHandler {
	return &SpeakerHandler{service: service}
}

type addSpeakerRequest struct {
	Email     string  `json:"email" validate:"required,max=254"`
	Role      string  `json:"role" validate:"max=50"`
	ArticleID *string `json:"article_id" validate:"omitempty,uuid"`
}

type updateSpeakerRequest struct {
	Role      string  `json:"role" validate:"max=50"`
	ArticleID *string `json:"article_id" validate:"omitempty,uuid"`
}

// ListSpeakers はイベントのスピーカー一覧を返す。
// GET /api/events/{id}/speakers
func (h *SpeakerHandler) ListSpeakers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}

	speakers, err := h.service.ListSpeakers(r.Context(), eventID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSpeakerResponses(speakers))
}

// AddSpeaker はメールアドレスで指定したユーザーをスピーカーに追加する。
// POST /api/events/{id}/speakers
func (h *SpeakerHandler) AddSpeaker(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req addSpeakerRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	sp, err := h.service.AddSpeaker(r.Context(), eventID, userID, req.Email, speaker.Input{Role: req.Role, ArticleID: req.ArticleID})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toSpeakerResponse(sp))
}

// UpdateSpeaker はスピーカーのロールと紹介記事を更新する。
// PATCH /api/events/{id}/speakers/{userID}
func (h *SpeakerHandler) UpdateSpeaker(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	speakerUserID, ok := pathID(w, r, "userID", model.NewSpeakerNotFoundError)
	if !ok {
		return
	}
	var req updateSpeakerRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	sp, err := h.service.UpdateSpeaker(r.Context(), eventID, userID, speakerUserID, speaker.Input{Role: req.Role, ArticleID: req.ArticleID})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSpeakerResponse(sp))
}

// RemoveSpeaker はスピーカーをイベントから外す。
// DELETE /api/events/{id}/speakers/{userID}
func (h *SpeakerHandler) RemoveSpeaker(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	speakerUserID, ok := pathID(w, r, "userID", model.NewSpeakerNotFoundError)
	if !ok {
		return
	}

	if err := h.service.RemoveSpeaker(r.Context(), eventID, userID, speakerUserID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
