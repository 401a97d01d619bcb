// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	store     repository.Store
	publisher invalidation.Publisher
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.Store, publisher invalidation.Publisher, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{store: store, publisher: publisher, metrics: m}
}

// Withdraw はユーザーの退会処理を実行する。
// 唯一の管理者であるイベントが残っている間は退会できない。
// 削除順序: speakers → owners → sessions → user（+ CASCADE: identities）
// 作成した記事は作成者なしとして残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	err := s.withdraw(ctx, userID)
	s.metrics.RecordOperation("user.withdraw", metrics.OutcomeOf(err))
	return err
}

func (s *Service) withdraw(ctx context.Context, userID string) error {
	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		user, err := r.Users.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return model.NewUserNotFoundError()
		}

		soleAdmin, err := r.Owners.ListSoleAdminEventIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list sole admin events: %w", err)
		}
		if len(soleAdmin) > 0 {
			return model.NewLastAdminError(strings.Join(soleAdmin, ", "))
		}

		eventIDs, err := r.Owners.ListEventIDsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list owned events: %w", err)
		}
		for _, id := range eventIDs {
			b.Add(invalidation.EventKey(id))
		}

		// 1. スピーカー登録を削除
		if err := r.Speakers.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete speakers: %w", err)
		}
		// 2. オーナー登録を削除
		if err := r.Owners.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete owners: %w", err)
		}
		// 3. セッションを削除
		if err := r.Sessions.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		// 4. ユーザーを削除（identitiesはCASCADE削除）
		if err := r.Users.DeleteByID(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}

		b.Add(invalidation.UserKey(userID))
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
