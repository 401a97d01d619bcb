package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/eventkeeper/internal/event"
	"github.com/hitoshi/eventkeeper/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	CreateEvent(ctx context.Context, userID string, in event.Input) (*model.Event, error)
	UpdateEvent(ctx context.Context, eventID, actingUserID string, in event.Input) (*model.Event, error)
	DeleteEvent(ctx context.Context, eventID, actingUserID string) error
	GetEvent(ctx context.Context, eventID, actingUserID string) (*model.EventDetail, error)
	ListMyEvents(ctx context.Context, userID string) ([]*model.Event, error)
	SetAttendance(ctx context.Context, eventID, actingUserID string, newValue int) (int, error)
	IncrementAttendance(ctx context.Context, eventID, actingUserID string, delta int) (int, error)
}

// EventHandler はイベントと参加者数のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

type eventRequest struct {
	Title    string  `json:"title" validate:"required,max=200"`
	EventURL *string `json:"event_url" validate:"omitempty,max=2048"`
}

func (req eventRequest) input() event.Input {
	return event.Input{Title: req.Title, EventURL: req.EventURL}
}

type setAttendanceRequest struct {
	Value *int `json:"value" validate:"required"`
}

type incrementAttendanceRequest struct {
	Delta *int `json:"delta" validate:"required"`
}

type attendanceResponse struct {
	EventID    string `json:"event_id"`
	Attendance int    `json:"attendance"`
}

// ListEvents はログインユーザーがオーナーのイベント一覧を返す。
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListMyEvents(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res := make([]eventResponse, len(events))
	for i, e := range events {
		res[i] = toEventResponse(e)
	}
	writeJSON(w, r, http.StatusOK, res)
}

// CreateEvent はイベントを作成する。作成者は管理者になる。
// POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	e, err := h.service.CreateEvent(r.Context(), userID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toEventResponse(e))
}

// GetEvent はイベント詳細（オーナー、スピーカー、タイマーを含む）を返す。
// GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}

	detail, err := h.service.GetEvent(r.Context(), eventID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toEventDetailResponse(detail))
}

// UpdateEvent はイベントのタイトルとURLを更新する。
// PATCH /api/events/{id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req eventRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	e, err := h.service.UpdateEvent(r.Context(), eventID, userID, req.input())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toEventResponse(e))
}

// DeleteEvent はイベントと関連データを削除する。
// DELETE /api/events/{id}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}

	if err := h.service.DeleteEvent(r.Context(), eventID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetAttendance は参加者数を指定値にする。
// PUT /api/events/{id}/attendance
func (h *EventHandler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req setAttendanceRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	value, err := h.service.SetAttendance(r.Context(), eventID, userID, *req.Value)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, attendanceResponse{EventID: eventID, Attendance: value})
}

// IncrementAttendance は参加者数に差分を加算する。
// POST /api/events/{id}/attendance/increment
func (h *EventHandler) IncrementAttendance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req incrementAttendanceRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	value, err := h.service.IncrementAttendance(r.Context(), eventID, userID, *req.Delta)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, attendanceResponse{EventID: eventID, Attendance: value})
}
