// Package event はイベントのライフサイクルと参加者数カウンターを提供する。
package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/linkpreview"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/owner"
	"github.com/hitoshi/eventkeeper/internal/permission"
	"github.com/hitoshi/eventkeeper/internal/repository"
	"github.com/hitoshi/eventkeeper/internal/viewcache"
)

// URLValidator はイベントURLの検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はイベント管理のサービス層。
type Service struct {
	store     repository.Store
	publisher invalidation.Publisher
	cache     *viewcache.Cache
	guard     URLValidator
	preview   linkpreview.Service
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// Option はServiceのオプション設定。
type Option func(*Service)

// WithLinkPreview はイベントURLのリンクプレビュー取得を有効にする。
func WithLinkPreview(p linkpreview.Service) Option {
	return func(s *Service) { s.preview = p }
}

// WithMetrics はメトリクス収集を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService はServiceの新しいインスタンスを生成する。
// cacheがnilの場合は参照系を毎回ストアから読み込む。
func NewService(store repository.Store, publisher invalidation.Publisher, cache *viewcache.Cache, guard URLValidator, opts ...Option) *Service {
	if cache == nil {
		cache = viewcache.New(0, nil)
	}
	s := &Service{
		store:     store,
		publisher: publisher,
		cache:     cache,
		guard:     guard,
		metrics:   metrics.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Input はイベント作成・更新の入力。
type Input struct {
	Title    string
	EventURL *string
}

// normalize は入力を検証し、前後の空白を除去した値を返す。
func (s *Service) normalize(in Input) (Input, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return in, model.NewValidationError("title", "required")
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return in, model.NewValidationError("title", fmt.Sprintf("must be at most %d characters", model.MaxTitleLength))
	}

	out := Input{Title: title}
	if in.EventURL != nil {
		u := strings.TrimSpace(*in.EventURL)
		if u != "" {
			if s.guard != nil {
				if err := s.guard.ValidateURL(u); err != nil {
					return in, model.NewInvalidURLError(err.Error())
				}
			}
			out.EventURL = &u
		}
	}
	return out, nil
}

// applyPreview はイベントURLのリンクプレビューを取得してeventに設定する。
// 取得に失敗しても処理は継続する。
func (s *Service) applyPreview(ctx context.Context, event *model.Event) {
	event.LinkTitle = nil
	event.FaviconData = nil
	event.FaviconMime = ""
	if s.preview == nil || event.EventURL == nil {
		return
	}

	p, err := s.preview.Fetch(ctx, *event.EventURL)
	if err != nil {
		slog.Warn("link preview failed",
			slog.String("url", *event.EventURL),
			slog.String("error", err.Error()),
		)
		return
	}
	if p.Title != "" {
		title := p.Title
		event.LinkTitle = &title
	}
	event.FaviconData = p.FaviconData
	event.FaviconMime = p.FaviconMime
}

// CreateEvent はイベントを作成し、作成者を管理者として登録する。
func (s *Service) CreateEvent(ctx context.Context, userID string, in Input) (*model.Event, error) {
	event, err := s.createEvent(ctx, userID, in)
	s.metrics.RecordOperation("event.create", metrics.OutcomeOf(err))
	return event, err
}

func (s *Service) createEvent(ctx context.Context, userID string, in Input) (*model.Event, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	event := &model.Event{
		ID:        uuid.New().String(),
		Title:     in.Title,
		EventURL:  in.EventURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// 外部へのHTTP取得はトランザクションの外で行う
	s.applyPreview(ctx, event)

	err = invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		user, err := r.Users.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return model.NewUnauthenticatedError()
		}

		if err := r.Events.Create(ctx, event); err != nil {
			return fmt.Errorf("failed to create event: %w", err)
		}
		creator := &model.Owner{
			ID:        uuid.New().String(),
			EventID:   event.ID,
			UserID:    userID,
			Role:      model.RoleAdmin,
			CreatedAt: now,
		}
		if err := r.Owners.Create(ctx, creator); err != nil {
			return fmt.Errorf("failed to create owner: %w", err)
		}

		b.Add(invalidation.UserKey(userID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event created",
		slog.String("event_id", event.ID),
		slog.String("user_id", userID),
	)
	return event, nil
}

// UpdateEvent はイベントのタイトルとURLを更新する。オーナーのみ実行できる。
// URLが変わった場合はリンクプレビューを取得し直す。
func (s *Service) UpdateEvent(ctx context.Context, eventID, actingUserID string, in Input) (*model.Event, error) {
	event, err := s.updateEvent(ctx, eventID, actingUserID, in)
	s.metrics.RecordOperation("event.update", metrics.OutcomeOf(err))
	return event, err
}

func (s *Service) updateEvent(ctx context.Context, eventID, actingUserID string, in Input) (*model.Event, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	// プレビュー取得の要否を判断するため、ロック前に現在値を読む
	r := s.store.Repos()
	current, err := r.Events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	if current == nil {
		return nil, model.NewEventNotFoundError(eventID)
	}
	if err := permission.New(r.Owners).RequireOwner(ctx, actingUserID, eventID); err != nil {
		return nil, err
	}

	urlChanged := !sameURL(current.EventURL, in.EventURL)
	fetched := &model.Event{EventURL: in.EventURL}
	if urlChanged {
		s.applyPreview(ctx, fetched)
	}

	var updated *model.Event
	err = invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		event, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner)
		if err != nil {
			return err
		}

		event.Title = in.Title
		if urlChanged {
			event.EventURL = fetched.EventURL
			event.LinkTitle = fetched.LinkTitle
			event.FaviconData = fetched.FaviconData
			event.FaviconMime = fetched.FaviconMime
		}
		event.UpdatedAt = s.now()

		if err := r.Events.Update(ctx, event); err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		updated = event
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event updated",
		slog.String("event_id", eventID),
		slog.String("acting_user_id", actingUserID),
	)
	return updated, nil
}

func sameURL(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DeleteEvent はイベントとタイマー、スピーカー、オーナーを削除する。管理者のみ実行できる。
func (s *Service) DeleteEvent(ctx context.Context, eventID, actingUserID string) error {
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelAdmin); err != nil {
			return err
		}

		if _, err := r.Timers.DeleteByEventID(ctx, eventID); err != nil {
			return fmt.Errorf("failed to delete timers: %w", err)
		}
		if _, err := r.Speakers.DeleteByEventID(ctx, eventID); err != nil {
			return fmt.Errorf("failed to delete speakers: %w", err)
		}
		if _, err := owner.DeleteRoster(ctx, r, b, eventID); err != nil {
			return err
		}
		if err := r.Events.Delete(ctx, eventID); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}

		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	s.metrics.RecordOperation("event.delete", metrics.OutcomeOf(err))
	if err != nil {
		return err
	}

	slog.Info("event deleted",
		slog.String("event_id", eventID),
		slog.String("acting_user_id", actingUserID),
	)
	return nil
}
