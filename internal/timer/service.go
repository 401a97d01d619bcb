// Package timer はイベントのカウントダウンタイマー（セッション枠）の並びを管理する。
// 同一イベント内のsequenceは常に1..Nの連番に保たれる。
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/permission"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// Service はタイマー管理のサービス層。
type Service struct {
	store     repository.Store
	publisher invalidation.Publisher
	metrics   metrics.MetricsCollector
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
		now:       time.Now,
	}
}

func validateDuration(minutes int) error {
	if minutes < 1 || minutes > model.MaxTimerMinutes {
		return model.NewInvalidDurationError(minutes, model.MaxTimerMinutes)
	}
	return nil
}

// AddSession はイベント末尾にタイマーを追加する。
func (s *Service) AddSession(ctx context.Context, eventID, actingUserID string, durationMinutes int) (*model.Timer, error) {
	if err := validateDuration(durationMinutes); err != nil {
		s.metrics.RecordOperation("timer.add", metrics.OutcomeOf(err))
		return nil, err
	}

	var created *model.Timer
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner); err != nil {
			return err
		}

		maxSeq, err := r.Timers.MaxSequence(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to get max sequence: %w", err)
		}

		timer := &model.Timer{
			ID:              uuid.New().String(),
			EventID:         eventID,
			DurationMinutes: durationMinutes,
			Sequence:        maxSeq + 1,
			CreatedAt:       s.now(),
		}
		if err := r.Timers.Create(ctx, timer); err != nil {
			return fmt.Errorf("failed to create timer: %w", err)
		}

		created = timer
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	s.metrics.RecordOperation("timer.add", metrics.OutcomeOf(err))
	if err != nil {
		return nil, err
	}

	slog.Info("timer added",
		slog.String("event_id", eventID),
		slog.String("timer_id", created.ID),
		slog.Int("sequence", created.Sequence),
		slog.Int("duration_minutes", created.DurationMinutes),
	)
	return created, nil
}

// UpdateSession はタイマーの時間を変更する。sequenceは変わらない。
func (s *Service) UpdateSession(ctx context.Context, timerID, actingUserID string, newDuration int) (*model.Timer, error) {
	if err := validateDuration(newDuration); err != nil {
		s.metrics.RecordOperation("timer.update", metrics.OutcomeOf(err))
		return nil, err
	}

	var updated *model.Timer
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		timer, err := s.lockTimer(ctx, r, timerID, actingUserID)
		if err != nil {
			return err
		}

		if err := r.Timers.UpdateDuration(ctx, timerID, newDuration); err != nil {
			return fmt.Errorf("failed to update timer: %w", err)
		}
		timer.DurationMinutes = newDuration
		updated = timer
		b.Add(invalidation.EventKey(timer.EventID))
		return nil
	})
	s.metrics.RecordOperation("timer.update", metrics.OutcomeOf(err))
	if err != nil {
		return nil, err
	}

	slog.Info("timer updated",
		slog.String("event_id", updated.EventID),
		slog.String("timer_id", timerID),
		slog.Int("duration_minutes", newDuration),
	)
	return updated, nil
}

// DeleteSession はタイマーを削除し、残りのタイマーを1..Nに振り直す。
func (s *Service) DeleteSession(ctx context.Context, timerID, actingUserID string) error {
	var eventID string
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		timer, err := s.lockTimer(ctx, r, timerID, actingUserID)
		if err != nil {
			return err
		}

		if err := r.Timers.Delete(ctx, timerID); err != nil {
			return fmt.Errorf("failed to delete timer: %w", err)
		}
		if err := r.Timers.Renumber(ctx, timer.EventID); err != nil {
			return fmt.Errorf("failed to renumber timers: %w", err)
		}

		eventID = timer.EventID
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	s.metrics.RecordOperation("timer.delete", metrics.OutcomeOf(err))
	if err != nil {
		return err
	}

	slog.Info("timer deleted",
		slog.String("event_id", eventID),
		slog.String("timer_id", timerID),
	)
	return nil
}

// lockTimer はタイマーの所属イベントをロックし、オーナー権限を確認する。
func (s *Service) lockTimer(ctx context.Context, r *repository.Repos, timerID, actingUserID string) (*model.Timer, error) {
	timer, err := r.Timers.FindByID(ctx, timerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find timer: %w", err)
	}
	if timer == nil {
		return nil, model.NewTimerNotFoundError(timerID)
	}
	if _, err := permission.LockEvent(ctx, r, actingUserID, timer.EventID, permission.LevelOwner); err != nil {
		return nil, err
	}

	// ロック取得前に削除された場合
	timer, err = r.Timers.FindByID(ctx, timerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find timer: %w", err)
	}
	if timer == nil {
		return nil, model.NewTimerNotFoundError(timerID)
	}
	return timer, nil
}

// Reorder はorderedTimerIDsの順にsequenceを振り直す。
// リストはイベントのタイマー集合と過不足なく一致している必要がある。
func (s *Service) Reorder(ctx context.Context, eventID, actingUserID string, orderedTimerIDs []string) ([]model.Timer, error) {
	var result []model.Timer
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner); err != nil {
			return err
		}

		current, err := r.Timers.ListByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to list timers: %w", err)
		}
		if err := validateOrder(current, orderedTimerIDs); err != nil {
			return err
		}

		if err := r.Timers.AssignSequences(ctx, eventID, orderedTimerIDs); err != nil {
			return fmt.Errorf("failed to assign sequences: %w", err)
		}

		result, err = r.Timers.ListByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to list timers: %w", err)
		}
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	s.metrics.RecordOperation("timer.reorder", metrics.OutcomeOf(err))
	if err != nil {
		return nil, err
	}

	slog.Info("timers reordered",
		slog.String("event_id", eventID),
		slog.Int("count", len(result)),
	)
	return result, nil
}

// validateOrder はorderedがcurrentのID集合と完全に一致するかを検証する。
func validateOrder(current []model.Timer, ordered []string) error {
	if len(ordered) != len(current) {
		return model.NewInvalidTimerOrderError(
			fmt.Sprintf("expected %d timers, got %d", len(current), len(ordered)))
	}

	known := make(map[string]bool, len(current))
	for _, t := range current {
		known[t.ID] = false
	}
	for _, id := range ordered {
		seen, ok := known[id]
		if !ok {
			return model.NewInvalidTimerOrderError(fmt.Sprintf("timer %s does not belong to the event", id))
		}
		if seen {
			return model.NewInvalidTimerOrderError(fmt.Sprintf("timer %s is listed more than once", id))
		}
		known[id] = true
	}
	return nil
}

// ListSessions はイベントのタイマーをsequence順に返す。オーナーのみ参照できる。
func (s *Service) ListSessions(ctx context.Context, eventID, actingUserID string) ([]model.Timer, error) {
	r := s.store.Repos()
	if err := requireReadable(ctx, r, eventID, actingUserID); err != nil {
		return nil, err
	}

	timers, err := r.Timers.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	return timers, nil
}

// Schedule はstartを開始時刻としたタイマーの時間割を返す。
func (s *Service) Schedule(ctx context.Context, eventID, actingUserID string, start time.Time) ([]Slot, error) {
	timers, err := s.ListSessions(ctx, eventID, actingUserID)
	if err != nil {
		return nil, err
	}
	return BuildSchedule(timers, start), nil
}

func requireReadable(ctx context.Context, r *repository.Repos, eventID, actingUserID string) error {
	event, err := r.Events.FindByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to find event: %w", err)
	}
	if event == nil {
		return model.NewEventNotFoundError(eventID)
	}
	return permission.New(r.Owners).RequireOwner(ctx, actingUserID, eventID)
}
