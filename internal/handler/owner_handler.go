package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// OwnerServiceInterface はオーナーハンドラーが必要とするサービスインターフェース。
type OwnerServiceInterface interface {
	AddOwner(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error)
	RemoveOwner(ctx context.Context, eventID, actingUserID, targetUserID string) error
	ChangeRole(ctx context.Context, ownerID, actingUserID, eventID string, newRole model.Role) (*model.Owner, error)
	ListOwners(ctx context.Context, eventID, actingUserID string) ([]model.OwnerWithUser, error)
}

// OwnerHandler はイベントオーナー管理のHTTPハンドラー。
type OwnerHandler struct {
	service OwnerServiceInterface
}

// NewOwnerHandler はOwnerHandlerを生成する。
func NewOwnerHandler(service OwnerServiceInterface) *OwnerHandler {
	return &OwnerHandler{service: service}
}

type addOwnerRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	Role  string `json:"role"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// parseRoleOrDefault はロール文字列を解釈する。空の場合はmemberとする。
func parseRoleOrDefault(s string) (model.Role, *model.APIError) {
	if s == "" {
		return model.RoleMember, nil
	}
	role, ok := model.ParseRole(s)
	if !ok {
		return "", model.NewInvalidRoleError(s)
	}
	return role, nil
}

// ListOwners はイベントのオーナー一覧を返す。
// GET /api/events/{id}/owners
func (h *OwnerHandler) ListOwners(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}

	owners, err := h.service.ListOwners(r.Context(), eventID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOwnerResponses(owners))
}

// AddOwner はメールアドレスで指定したユーザーをオーナーに追加する。
// POST /api/events/{id}/owners
func (h *OwnerHandler) AddOwner(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	var req addOwnerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	role, apiErr := parseRoleOrDefault(req.Role)
	if apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	owner, err := h.service.AddOwner(r.Context(), eventID, userID, req.Email, role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOwnerResponse(owner))
}

// RemoveOwner はユーザーをイベントのオーナーから外す。
// DELETE /api/events/{id}/owners/{userID}
func (h *OwnerHandler) RemoveOwner(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	targetUserID, ok := pathID(w, r, "userID", func(string) *model.APIError { return model.NewUserNotFoundError() })
	if !ok {
		return
	}

	if err := h.service.RemoveOwner(r.Context(), eventID, userID, targetUserID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole はオーナーのロールを変更する。
// PUT /api/events/{id}/owners/{ownerID}/role
func (h *OwnerHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "id", model.NewEventNotFoundError)
	if !ok {
		return
	}
	ownerID, ok := pathID(w, r, "ownerID", model.NewOwnerNotFoundError)
	if !ok {
		return
	}
	var req changeRoleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		handleServiceError(w, r, model.NewInvalidRoleError(req.Role))
		return
	}

	owner, err := h.service.ChangeRole(r.Context(), ownerID, userID, eventID, role)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOwnerResponse(owner))
}
