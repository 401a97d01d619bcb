package event

import (
	"context"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/permission"
	"github.com/hitoshi/eventkeeper/internal/viewcache"
)

// GetEvent はイベント詳細（オーナー、スピーカー、タイマー）を返す。オーナーのみ参照できる。
// 詳細はビューキャッシュ経由で読み込む。権限確認は毎回行う。
func (s *Service) GetEvent(ctx context.Context, eventID, actingUserID string) (*model.EventDetail, error) {
	r := s.store.Repos()
	ok, err := permission.New(r.Owners).IsOwner(ctx, actingUserID, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		event, err := r.Events.FindByID(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to find event: %w", err)
		}
		if event == nil {
			return nil, model.NewEventNotFoundError(eventID)
		}
		return nil, model.NewForbiddenError(eventID)
	}

	return viewcache.Get(s.cache, "event-detail:"+eventID, func() (*model.EventDetail, []invalidation.Key, error) {
		detail, err := s.loadDetail(ctx, eventID)
		if err != nil {
			return nil, nil, err
		}
		return detail, detailDeps(detail), nil
	})
}

func (s *Service) loadDetail(ctx context.Context, eventID string) (*model.EventDetail, error) {
	r := s.store.Repos()
	event, err := r.Events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}

	owners, err := r.Owners.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	speakers, err := r.Speakers.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	timers, err := r.Timers.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}

	return &model.EventDetail{
		Event:    *event,
		Owners:   owners,
		Speakers: speakers,
		Timers:   timers,
	}, nil
}

// detailDeps は詳細ビューが依存するキーを返す。
// オーナーとスピーカーのプロフィール変更でも破棄されるようユーザーキーを含める。
func detailDeps(d *model.EventDetail) []invalidation.Key {
	deps := []invalidation.Key{invalidation.EventKey(d.Event.ID)}
	for _, o := range d.Owners {
		deps = append(deps, invalidation.UserKey(o.UserID))
	}
	for _, sp := range d.Speakers {
		deps = append(deps, invalidation.UserKey(sp.UserID))
	}
	return deps
}

// ListMyEvents はユーザーがオーナーであるイベント一覧を返す。
func (s *Service) ListMyEvents(ctx context.Context, userID string) ([]*model.Event, error) {
	return viewcache.Get(s.cache, "my-events:"+userID, func() ([]*model.Event, []invalidation.Key, error) {
		events, err := s.store.Repos().Events.ListByOwner(ctx, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list events: %w", err)
		}
		deps := make([]invalidation.Key, 0, len(events)+1)
		deps = append(deps, invalidation.UserKey(userID))
		for _, e := range events {
			deps = append(deps, invalidation.EventKey(e.ID))
		}
		return events, deps, nil
	})
}
