package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/permission"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// SetAttendance は参加者数をnewValueに設定し、更新後の値を返す。
// イベント行をロックしてから差分を算出し、相対加算で反映する。
func (s *Service) SetAttendance(ctx context.Context, eventID, actingUserID string, newValue int) (int, error) {
	if newValue < 0 || newValue > model.MaxAttendance {
		err := model.NewInvalidAttendanceError(newValue, model.MaxAttendance)
		s.metrics.RecordOperation("event.set_attendance", metrics.OutcomeOf(err))
		return 0, err
	}

	value, err := s.addAttendance(ctx, eventID, actingUserID, func(current int) int {
		return newValue - current
	})
	s.metrics.RecordOperation("event.set_attendance", metrics.OutcomeOf(err))
	return value, err
}

// IncrementAttendance は参加者数にdeltaを加算し、更新後の値を返す。
// 結果が0から上限の範囲外になる場合はValidationErrorを返す。
func (s *Service) IncrementAttendance(ctx context.Context, eventID, actingUserID string, delta int) (int, error) {
	value, err := s.addAttendance(ctx, eventID, actingUserID, func(int) int {
		return delta
	})
	s.metrics.RecordOperation("event.increment_attendance", metrics.OutcomeOf(err))
	return value, err
}

func (s *Service) addAttendance(ctx context.Context, eventID, actingUserID string, deltaFor func(current int) int) (int, error) {
	var result int
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		event, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner)
		if err != nil {
			return err
		}

		delta := deltaFor(event.Attendance)
		next := event.Attendance + delta
		if next < 0 || next > model.MaxAttendance {
			return model.NewInvalidAttendanceError(next, model.MaxAttendance)
		}
		if delta == 0 {
			result = event.Attendance
			return nil
		}

		value, err := r.Events.AddAttendance(ctx, eventID, delta)
		if err != nil {
			return fmt.Errorf("failed to update attendance: %w", err)
		}
		result = value
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("attendance updated",
		slog.String("event_id", eventID),
		slog.Int("attendance", result),
	)
	return result, nil
}
