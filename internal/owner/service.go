// Package owner はイベントオーナー（主催者）の管理ロジックを提供する。
package owner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/permission"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// Service はオーナー管理のサービス層。
// 各操作は権限確認と書き込みを1つのトランザクションで行う。
type Service struct {
	store     repository.Store
	publisher invalidation.Publisher
	metrics   metrics.MetricsCollector
	validate  *validator.Validate
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.Store, publisher invalidation.Publisher, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   m,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// AddOwner はメールアドレスで指定したユーザーをイベントのオーナーに追加する。
// roleが空の場合はメンバーとして追加する。管理者のみ実行できる。
func (s *Service) AddOwner(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error) {
	owner, err := s.addOwner(ctx, eventID, actingUserID, targetEmail, role)
	s.metrics.RecordOperation("owner.add", metrics.OutcomeOf(err))
	return owner, err
}

func (s *Service) addOwner(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error) {
	if role == "" {
		role = model.RoleMember
	}
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, model.NewInvalidRoleError(string(role))
	}
	email := strings.TrimSpace(targetEmail)
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return nil, model.NewInvalidEmailError(targetEmail)
	}

	var created *model.Owner
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelAdmin); err != nil {
			return err
		}

		target, err := r.Users.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to find user by email: %w", err)
		}
		if target == nil {
			return model.NewUserNotFoundError()
		}

		existing, err := r.Owners.FindByEventAndUser(ctx, eventID, target.ID)
		if err != nil {
			return fmt.Errorf("failed to find owner: %w", err)
		}
		if existing != nil {
			return model.NewDuplicateOwnerError()
		}

		owner := &model.Owner{
			ID:        uuid.New().String(),
			EventID:   eventID,
			UserID:    target.ID,
			Role:      role,
			CreatedAt: s.now(),
		}
		if err := r.Owners.Create(ctx, owner); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewDuplicateOwnerError()
			}
			return fmt.Errorf("failed to create owner: %w", err)
		}

		created = owner
		b.Add(invalidation.EventKey(eventID), invalidation.UserKey(target.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("owner added",
		slog.String("event_id", eventID),
		slog.String("user_id", created.UserID),
		slog.String("role", string(created.Role)),
		slog.String("acting_user_id", actingUserID),
	)
	return created, nil
}

// RemoveOwner は指定ユーザーをイベントのオーナーから外す。
// 自分自身は外せない。対象がオーナーでない場合は何もしない。
func (s *Service) RemoveOwner(ctx context.Context, eventID, actingUserID, targetUserID string) error {
	err := s.removeOwner(ctx, eventID, actingUserID, targetUserID)
	s.metrics.RecordOperation("owner.remove", metrics.OutcomeOf(err))
	return err
}

func (s *Service) removeOwner(ctx context.Context, eventID, actingUserID, targetUserID string) error {
	var removed int
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelAdmin); err != nil {
			return err
		}
		if targetUserID == actingUserID {
			return model.NewSelfRemovalError()
		}

		n, err := r.Owners.DeleteByEventAndUser(ctx, eventID, targetUserID)
		if err != nil {
			return fmt.Errorf("failed to delete owner: %w", err)
		}
		removed = n
		if n > 0 {
			b.Add(invalidation.EventKey(eventID), invalidation.UserKey(targetUserID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if removed > 0 {
		slog.Info("owner removed",
			slog.String("event_id", eventID),
			slog.String("user_id", targetUserID),
			slog.String("acting_user_id", actingUserID),
		)
	}
	return nil
}

// ChangeRole はオーナーのロールを変更する。
// 最後の管理者をメンバーに降格することはできない。
func (s *Service) ChangeRole(ctx context.Context, ownerID, actingUserID, eventID string, newRole model.Role) (*model.Owner, error) {
	owner, err := s.changeRole(ctx, ownerID, actingUserID, eventID, newRole)
	s.metrics.RecordOperation("owner.change_role", metrics.OutcomeOf(err))
	return owner, err
}

func (s *Service) changeRole(ctx context.Context, ownerID, actingUserID, eventID string, newRole model.Role) (*model.Owner, error) {
	role, ok := model.ParseRole(string(newRole))
	if !ok {
		return nil, model.NewInvalidRoleError(string(newRole))
	}

	var updated *model.Owner
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelAdmin); err != nil {
			return err
		}

		owner, err := r.Owners.FindByID(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to find owner: %w", err)
		}
		if owner == nil || owner.EventID != eventID {
			return model.NewOwnerNotFoundError(ownerID)
		}

		if owner.Role == role {
			updated = owner
			return nil
		}

		if owner.Role == model.RoleAdmin && role != model.RoleAdmin {
			admins, err := r.Owners.CountAdmins(ctx, eventID)
			if err != nil {
				return fmt.Errorf("failed to count admins: %w", err)
			}
			if admins <= 1 {
				return model.NewLastAdminError(eventID)
			}
		}

		if err := r.Owners.UpdateRole(ctx, ownerID, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		owner.Role = role
		updated = owner
		b.Add(invalidation.EventKey(eventID), invalidation.UserKey(owner.UserID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("owner role changed",
		slog.String("event_id", eventID),
		slog.String("owner_id", ownerID),
		slog.String("role", string(updated.Role)),
		slog.String("acting_user_id", actingUserID),
	)
	return updated, nil
}

// DeleteByEventID はイベントの全オーナーを削除し、削除件数を返す。
// イベント削除時のクリーンアップ用。権限確認は呼び出し側で行う。
func (s *Service) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	var deleted int
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		n, err := DeleteRoster(ctx, r, b, eventID)
		deleted = n
		return err
	})
	s.metrics.RecordOperation("owner.delete_by_event", metrics.OutcomeOf(err))
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteRoster は呼び出し側のトランザクション内でイベントの全オーナーを削除し、削除件数を返す。
// 削除したオーナーのユーザーキーとイベントキーをbに積む。
func DeleteRoster(ctx context.Context, r *repository.Repos, b *invalidation.Batch, eventID string) (int, error) {
	owners, err := r.Owners.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to list owners: %w", err)
	}
	n, err := r.Owners.DeleteByEventID(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete owners: %w", err)
	}
	if n > 0 {
		b.Add(invalidation.EventKey(eventID))
		for _, o := range owners {
			b.Add(invalidation.UserKey(o.UserID))
		}
	}
	return n, nil
}

// ListOwners はイベントのオーナー一覧を返す。オーナーのみ参照できる。
func (s *Service) ListOwners(ctx context.Context, eventID, actingUserID string) ([]model.OwnerWithUser, error) {
	r := s.store.Repos()
	event, err := r.Events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	if err := permission.New(r.Owners).RequireOwner(ctx, actingUserID, eventID); err != nil {
		return nil, err
	}

	owners, err := r.Owners.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}
