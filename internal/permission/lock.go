package permission

import (
	"context"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// Level は操作に必要な権限レベル。
type Level int

const (
	// LevelOwner はロールを問わずオーナーであることを要求する。
	LevelOwner Level = iota
	// LevelAdmin は管理者であることを要求する。
	LevelAdmin
)

// LockEvent はイベント行をロックしたうえでuserIDの権限を確認し、イベントを返す。
// rはトランザクションに束縛されたリポジトリ群であること。
// イベントが存在しない場合はNotFound、権限がない場合はForbiddenを返す。
func LockEvent(ctx context.Context, r *repository.Repos, userID, eventID string, level Level) (*model.Event, error) {
	event, err := r.Events.LockByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	gate := New(r.Owners)
	switch level {
	case LevelAdmin:
		err = gate.RequireAdmin(ctx, userID, eventID)
	default:
		err = gate.RequireOwner(ctx, userID, eventID)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
