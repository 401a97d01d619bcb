// Package speaker はイベントの登壇者管理ロジックを提供する。
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/permission"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// Service はスピーカー管理のサービス層。
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

// Input はスピーカーのロールと紹介記事。
// Roleが空の場合は既定のロールを使う。ArticleIDがnilの場合は記事なし。
type Input struct {
	Role      string
	ArticleID *string
}

func normalizeRole(role string) (string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return model.DefaultSpeakerRole, nil
	}
	if utf8.RuneCountInString(role) > model.MaxSpeakerRoleLength {
		return "", model.NewValidationError("role", fmt.Sprintf("must be at most %d characters", model.MaxSpeakerRoleLength))
	}
	return role, nil
}

// requireArticle は記事IDが指定されている場合に存在を確認する。
func requireArticle(ctx context.Context, r *repository.Repos, articleID *string) error {
	if articleID == nil {
		return nil
	}
	article, err := r.Articles.FindByID(ctx, *articleID)
	if err != nil {
		return fmt.Errorf("failed to find article: %w", err)
	}
	if article == nil {
		return model.NewArticleNotFoundError(*articleID)
	}
	return nil
}

// AddSpeaker はメールアドレスで指定したユーザーをスピーカーに追加する。オーナーのみ実行できる。
func (s *Service) AddSpeaker(ctx context.Context, eventID, actingUserID, email string, in Input) (*model.Speaker, error) {
	speaker, err := s.addSpeaker(ctx, eventID, actingUserID, email, in)
	s.metrics.RecordOperation("speaker.add", metrics.OutcomeOf(err))
	return speaker, err
}

func (s *Service) addSpeaker(ctx context.Context, eventID, actingUserID, email string, in Input) (*model.Speaker, error) {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return nil, model.NewInvalidEmailError(email)
	}
	role, err := normalizeRole(in.Role)
	if err != nil {
		return nil, err
	}

	var created *model.Speaker
	err = invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner); err != nil {
			return err
		}

		user, err := r.Users.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to find user by email: %w", err)
		}
		if user == nil {
			return model.NewUserNotFoundError()
		}
		if err := requireArticle(ctx, r, in.ArticleID); err != nil {
			return err
		}

		speaker := &model.Speaker{
			ID:        uuid.New().String(),
			EventID:   eventID,
			UserID:    user.ID,
			ArticleID: in.ArticleID,
			Role:      role,
			CreatedAt: s.now(),
		}
		if err := r.Speakers.Create(ctx, speaker); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewDuplicateSpeakerError()
			}
			return fmt.Errorf("failed to create speaker: %w", err)
		}

		created = speaker
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("speaker added",
		slog.String("event_id", eventID),
		slog.String("user_id", created.UserID),
		slog.String("role", created.Role),
	)
	return created, nil
}

// UpdateSpeaker はスピーカーのロールと紹介記事を置き換える。
func (s *Service) UpdateSpeaker(ctx context.Context, eventID, actingUserID, speakerUserID string, in Input) (*model.Speaker, error) {
	role, err := normalizeRole(in.Role)
	if err != nil {
		s.metrics.RecordOperation("speaker.update", metrics.OutcomeOf(err))
		return nil, err
	}

	var updated *model.Speaker
	err = invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner); err != nil {
			return err
		}

		speaker, err := r.Speakers.FindByEventAndUser(ctx, eventID, speakerUserID)
		if err != nil {
			return fmt.Errorf("failed to find speaker: %w", err)
		}
		if speaker == nil {
			return model.NewSpeakerNotFoundError(speakerUserID)
		}
		if err := requireArticle(ctx, r, in.ArticleID); err != nil {
			return err
		}

		speaker.Role = role
		speaker.ArticleID = in.ArticleID
		if err := r.Speakers.Update(ctx, speaker); err != nil {
			return fmt.Errorf("failed to update speaker: %w", err)
		}
		updated = speaker
		b.Add(invalidation.EventKey(eventID))
		return nil
	})
	s.metrics.RecordOperation("speaker.update", metrics.OutcomeOf(err))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveSpeaker はスピーカーを外す。対象がスピーカーでない場合は何もしない。
func (s *Service) RemoveSpeaker(ctx context.Context, eventID, actingUserID, speakerUserID string) error {
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if _, err := permission.LockEvent(ctx, r, actingUserID, eventID, permission.LevelOwner); err != nil {
			return err
		}
		n, err := r.Speakers.DeleteByEventAndUser(ctx, eventID, speakerUserID)
		if err != nil {
			return fmt.Errorf("failed to delete speaker: %w", err)
		}
		if n > 0 {
			b.Add(invalidation.EventKey(eventID))
		}
		return nil
	})
	s.metrics.RecordOperation("speaker.remove", metrics.OutcomeOf(err))
	return err
}

// ListSpeakers はイベントのスピーカー一覧を返す。オーナーのみ参照できる。
func (s *Service) ListSpeakers(ctx context.Context, eventID, actingUserID string) ([]model.SpeakerWithUser, error) {
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

	speakers, err := r.Speakers.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	return speakers, nil
}
