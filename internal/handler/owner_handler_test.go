package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/eventkeeper/internal/model"
)

func TestOwnerHandler_AddOwner(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		wantRole model.Role
	}{
		{"default role is member", map[string]any{"email": "bob@example.com"}, model.RoleMember},
		{"explicit admin", map[string]any{"email": "bob@example.com", "role": "Admin"}, model.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotEmail string
			var gotRole model.Role
			h := NewOwnerHandler(&mockOwnerService{
				addOwnerFn: func(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error) {
					gotEmail, gotRole = targetEmail, role
					return &model.Owner{ID: testOwnerID, EventID: eventID, UserID: otherUserID, Role: role}, nil
				},
			})

			req := withURLParams(withUserID(newRequest(t, http.MethodPost, "/", tt.body), testUserID), "id", testEventID)
			w := httptest.NewRecorder()
			h.AddOwner(w, req)

			if w.Code != http.StatusCreated {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
			}
			if gotEmail != "bob@example.com" || gotRole != tt.wantRole {
				t.Errorf("email = %q, role = %q", gotEmail, gotRole)
			}
			var res ownerResponse
			decodeBody(t, w, &res)
			if res.UserID != otherUserID || res.Role != string(tt.wantRole) {
				t.Errorf("response = %+v", res)
			}
		})
	}
}

func TestOwnerHandler_AddOwner_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"missing email", map[string]any{}, nil, http.StatusUnprocessableEntity, model.ErrCodeInvalidInput},
		{"unknown role", map[string]any{"email": "bob@example.com", "role": "owner"}, nil, http.StatusUnprocessableEntity, model.ErrCodeInvalidRole},
		{"user not registered", map[string]any{"email": "ghost@example.com"}, model.NewUserNotFoundError(), http.StatusNotFound, model.ErrCodeUserNotFound},
		{"already owner", map[string]any{"email": "bob@example.com"}, model.NewDuplicateOwnerError(), http.StatusConflict, model.ErrCodeDuplicateOwner},
		{"not admin", map[string]any{"email": "bob@example.com"}, model.NewAdminRequiredError(testEventID), http.StatusForbidden, model.ErrCodeAdminRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOwnerHandler(&mockOwnerService{
				addOwnerFn: func(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error) {
					if tt.serviceErr == nil {
						t.Fatal("service should not be called")
					}
					return nil, tt.serviceErr
				},
			})

			req := withURLParams(withUserID(newRequest(t, http.MethodPost, "/", tt.body), testUserID), "id", testEventID)
			w := httptest.NewRecorder()
			h.AddOwner(w, req)

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestOwnerHandler_RemoveOwner(t *testing.T) {
	t.Run("removes", func(t *testing.T) {
		var gotTarget string
		h := NewOwnerHandler(&mockOwnerService{
			removeOwnerFn: func(ctx context.Context, eventID, actingUserID, targetUserID string) error {
				gotTarget = targetUserID
				return nil
			},
		})

		req := withURLParams(withUserID(newRequest(t, http.MethodDelete, "/", nil), testUserID), "id", testEventID, "userID", otherUserID)
		w := httptest.NewRecorder()
		h.RemoveOwner(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if gotTarget != otherUserID {
			t.Errorf("target = %q", gotTarget)
		}
	})

	t.Run("self removal", func(t *testing.T) {
		h := NewOwnerHandler(&mockOwnerService{
			removeOwnerFn: func(ctx context.Context, eventID, actingUserID, targetUserID string) error {
				return model.NewSelfRemovalError()
			},
		})

		req := withURLParams(withUserID(newRequest(t, http.MethodDelete, "/", nil), testUserID), "id", testEventID, "userID", testUserID)
		w := httptest.NewRecorder()
		h.RemoveOwner(w, req)

		assertErrorCode(t, w, http.StatusConflict, model.ErrCodeSelfRemoval)
	})

	t.Run("malformed user id", func(t *testing.T) {
		h := NewOwnerHandler(&mockOwnerService{})

		req := withURLParams(withUserID(newRequest(t, http.MethodDelete, "/", nil), testUserID), "id", testEventID, "userID", "bob")
		w := httptest.NewRecorder()
		h.RemoveOwner(w, req)

		assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeUserNotFound)
	})
}

func TestOwnerHandler_ChangeRole(t *testing.T) {
	var gotOwner, gotEvent string
	var gotRole model.Role
	h := NewOwnerHandler(&mockOwnerService{
		changeRoleFn: func(ctx context.Context, ownerID, actingUserID, eventID string, newRole model.Role) (*model.Owner, error) {
			gotOwner, gotEvent, gotRole = ownerID, eventID, newRole
			if newRole == model.RoleMember {
				return nil, model.NewLastAdminError(eventID)
			}
			return &model.Owner{ID: ownerID, EventID: eventID, UserID: otherUserID, Role: newRole}, nil
		},
	})

	req := withURLParams(withUserID(newRequest(t, http.MethodPut, "/", map[string]string{"role": "admin"}), testUserID),
		"id", testEventID, "ownerID", testOwnerID)
	w := httptest.NewRecorder()
	h.ChangeRole(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if gotOwner != testOwnerID || gotEvent != testEventID || gotRole != model.RoleAdmin {
		t.Errorf("owner = %q, event = %q, role = %q", gotOwner, gotEvent, gotRole)
	}

	req = withURLParams(withUserID(newRequest(t, http.MethodPut, "/", map[string]string{"role": "member"}), testUserID),
		"id", testEventID, "ownerID", testOwnerID)
	w = httptest.NewRecorder()
	h.ChangeRole(w, req)
	assertErrorCode(t, w, http.StatusConflict, model.ErrCodeLastAdmin)

	req = withURLParams(withUserID(newRequest(t, http.MethodPut, "/", map[string]string{"role": "root"}), testUserID),
		"id", testEventID, "ownerID", testOwnerID)
	w = httptest.NewRecorder()
	h.ChangeRole(w, req)
	assertErrorCode(t, w, http.StatusUnprocessableEntity, model.ErrCodeInvalidRole)
}

func TestOwnerHandler_ListOwners(t *testing.T) {
	h := NewOwnerHandler(&mockOwnerService{
		listOwnersFn: func(ctx context.Context, eventID, actingUserID string) ([]model.OwnerWithUser, error) {
			return []model.OwnerWithUser{
				{Owner: model.Owner{ID: testOwnerID, EventID: eventID, UserID: actingUserID, Role: model.RoleAdmin}, Email: "alice@example.com"},
				{Owner: model.Owner{ID: "o2", EventID: eventID, UserID: otherUserID, Role: model.RoleMember}, Email: "bob@example.com"},
			}, nil
		},
	})

	req := withURLParams(withUserID(newRequest(t, http.MethodGet, "/", nil), testUserID), "id", testEventID)
	w := httptest.NewRecorder()
	h.ListOwners(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var res []ownerResponse
	decodeBody(t, w, &res)
	if len(res) != 2 || res[0].Role != "admin" || res[1].Email != "bob@example.com" {
		t.Errorf("response = %+v", res)
	}
}
