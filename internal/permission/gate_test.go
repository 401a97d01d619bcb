package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// mockOwnerRepo はテスト用のOwnerRepositoryモック。
type mockOwnerRepo struct {
	repository.OwnerRepository
	findByEventAndUserFn func(ctx context.Context, eventID, userID string) (*model.Owner, error)
}

func (m *mockOwnerRepo) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Owner, error) {
	return m.findByEventAndUserFn(ctx, eventID, userID)
}

func ownerWithRole(role model.Role) *mockOwnerRepo {
	return &mockOwnerRepo{
		findByEventAndUserFn: func(ctx context.Context, eventID, userID string) (*model.Owner, error) {
			if role == "" {
				return nil, nil
			}
			return &model.Owner{ID: "o1", EventID: eventID, UserID: userID, Role: role}, nil
		},
	}
}

func TestGate_IsOwnerAndIsAdmin(t *testing.T) {
	tests := []struct {
		name      string
		role      model.Role
		wantOwner bool
		wantAdmin bool
	}{
		{"管理者", model.RoleAdmin, true, true},
		{"メンバー", model.RoleMember, true, false},
		{"オーナーではない", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(ownerWithRole(tt.role))

			isOwner, err := g.IsOwner(context.Background(), "u1", "e1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if isOwner != tt.wantOwner {
				t.Errorf("IsOwner = %v, want %v", isOwner, tt.wantOwner)
			}

			isAdmin, err := g.IsAdmin(context.Background(), "u1", "e1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if isAdmin != tt.wantAdmin {
				t.Errorf("IsAdmin = %v, want %v", isAdmin, tt.wantAdmin)
			}
		})
	}
}

func TestGate_RequireOwner_ForbiddenForNonOwner(t *testing.T) {
	g := New(ownerWithRole(""))

	err := g.RequireOwner(context.Background(), "u1", "e1")
	if !model.IsKind(err, model.KindForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestGate_RequireAdmin_ForbiddenForMember(t *testing.T) {
	g := New(ownerWithRole(model.RoleMember))

	if err := g.RequireOwner(context.Background(), "u1", "e1"); err != nil {
		t.Fatalf("member should pass RequireOwner, got %v", err)
	}

	err := g.RequireAdmin(context.Background(), "u1", "e1")
	if !model.IsKind(err, model.KindForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAdminRequired {
		t.Errorf("code = %v, want ADMIN_REQUIRED", err)
	}
}

func TestGate_RepositoryError(t *testing.T) {
	boom := errors.New("connection refused")
	g := New(&mockOwnerRepo{
		findByEventAndUserFn: func(ctx context.Context, eventID, userID string) (*model.Owner, error) {
			return nil, boom
		},
	})

	err := g.RequireAdmin(context.Background(), "u1", "e1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
	if model.IsKind(err, model.KindForbidden) {
		t.Error("repository error must not be reported as forbidden")
	}
}
