// Package permission はイベント単位の権限判定を提供する。
package permission

import (
	"context"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// Gate はオーナー情報からユーザーの権限を判定する。
// 変更操作ではトランザクションに束縛されたOwnerRepositoryから生成し、
// 判定と書き込みを同一トランザクション内で行う。
type Gate struct {
	owners repository.OwnerRepository
}

// New はGateを生成する。
func New(owners repository.OwnerRepository) *Gate {
	return &Gate{owners: owners}
}

// IsOwner はユーザーがイベントのオーナー（ロール問わず）であるかを返す。
func (g *Gate) IsOwner(ctx context.Context, userID, eventID string) (bool, error) {
	owner, err := g.owners.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check owner: %w", err)
	}
	return owner != nil, nil
}

// IsAdmin はユーザーがイベントの管理者であるかを返す。
func (g *Gate) IsAdmin(ctx context.Context, userID, eventID string) (bool, error) {
	owner, err := g.owners.FindByEventAndUser(ctx, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return owner != nil && owner.Role == model.RoleAdmin, nil
}

// RequireOwner はユーザーがオーナーでない場合にForbiddenエラーを返す。
func (g *Gate) RequireOwner(ctx context.Context, userID, eventID string) error {
	ok, err := g.IsOwner(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewForbiddenError(eventID)
	}
	return nil
}

// RequireAdmin はユーザーが管理者でない場合にForbiddenエラーを返す。
func (g *Gate) RequireAdmin(ctx context.Context, userID, eventID string) error {
	ok, err := g.IsAdmin(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewAdminRequiredError(eventID)
	}
	return nil
}
