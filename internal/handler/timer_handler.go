package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/middleware"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/timer"
)

// TimerServiceInterface はタイマーハンドラーが必要とするサービスインターフェース。
type TimerServiceInterface interface {
	AddSession(ctx context.Context, eventID, actingUserID string, durationMinutes int) (*model.Timer, error)
	UpdateSession(ctx context.Context, timerID, actingUserID string, newDuration int) (*model.Timer, error)
	DeleteSession(ctx context.Context, timerID, actingUserID string) error
	Reorder(ctx context.Context, eventID, actingUserID string, orderedTimerIDs []string) ([]model.Timer, error)
	ListSessions(ctx context.Context, eventID, actingUserID string) ([]model.Timer, error)
	Schedule(ctx context.Context, eventID, actingUserID string, start time.Time) ([]timer.Slot, error)
}

// TimerHandler はカウントダウンタイマーのHTTPハンドラー。
type TimerHandler struct {
	service TimerServiceInterface
	now     func() time.Time
}

// NewTimerHandler はTimerHandlerを生成する。
func NewTimerHandler(service TimerServiceInterface) *TimerHandler {
	return &TimerHandler{service: service, now: time.Now}
}

type timerRequest struct {
	DurationMinutes *int `json:"duration_minutes" validate:"required"`
}

type reorderRequest struct {
	TimerIDs []string `json:"timer_ids" validate:"required,dive,uuid_rfc4122"`
}

// ListTimers はイベントのタイマーをsequence順に返す。
// GET /api/events/{id}/timers
func (h *TimerHandler) ListTimers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}

	timers, err := h.service.ListSessions(r.Context(), eventID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTimerResponses(timers))
}

// AddTimer はイベントの末尾にタイマーを追加する。
// POST /api/events/{id}/timers
func (h *TimerHandler) AddTimer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req timerRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	t, err := h.service.AddSession(r.Context(), eventID, userID, *req.DurationMinutes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toTimerResponse(t))
}

// ReorderTimers はタイマーを指定順に並べ替える。
// PUT /api/events/{id}/timers/order
func (h *TimerHandler) ReorderTimers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req reorderRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	// pathIDと同じく小文字の正規形に揃えて照合する。
	ids := make([]string, len(req.TimerIDs))
	for i, raw := range req.TimerIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.WriteAPIError(w, model.NewValidationError("timer_ids", "must be a UUID"))
			return
		}
		ids[i] = id.String()
	}

	timers, err := h.service.Reorder(r.Context(), eventID, userID, ids)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTimerResponses(timers))
}

// Schedule はタイマーを連続した時間割として返す。
// startクエリ（RFC3339）を省略した場合は現在時刻を開始時刻とする。
// GET /api/events/{id}/schedule?start=RFC3339
func (h *TimerHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}

	start := h.now().UTC().Truncate(time.Second)
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handleServiceError(w, r, model.NewValidationError("start", "must be RFC3339"))
			return
		}
		start = parsed
	}

	slots, err := h.service.Schedule(r.Context(), eventID, userID, start)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toScheduleResponse(start, slots))
}

// UpdateTimer はタイマーの時間を変更する。
// PATCH /api/timers/{id}
func (h *TimerHandler) UpdateTimer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	timerID, ok := pathID(w, r, "id", model.NewTimerNotFoundError)
	if !ok {
		return
	}
	var req timerRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	t, err := h.service.UpdateSession(r.Context(), timerID, userID, *req.DurationMinutes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTimerResponse(t))
}

// DeleteTimer はタイマーを削除し、残りのsequenceを詰める。
// DELETE /api/timers/{id}
func (h *TimerHandler) DeleteTimer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	timerID, ok := pathID(w, r, "id", model.NewTimerNotFoundError)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(r.Context(), timerID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
