// Package article はスピーカーが紹介する記事・スライドの管理ロジックを提供する。
package article

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/metrics"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// maxDescriptionLength はサニタイズ前の説明文の最大バイト数。
const maxDescriptionLength = 10000

// Sanitizer は説明文HTMLの無害化インターフェース。
type Sanitizer interface {
	SanitizeHTML(raw string) string
}

// URLValidator は記事URLの検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service は記事管理のサービス層。
type Service struct {
	store     repository.Store
	publisher invalidation.Publisher
	sanitizer Sanitizer
	guard     URLValidator
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store repository.Store, publisher invalidation.Publisher, sanitizer Sanitizer, guard URLValidator, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		sanitizer: sanitizer,
		guard:     guard,
		metrics:   m,
		now:       time.Now,
	}
}

// Input は記事の作成・更新の入力。
type Input struct {
	Title       string
	Description *string
	URL         *string
}

func (s *Service) normalize(in Input) (Input, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return in, model.NewValidationError("title", "required")
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return in, model.NewValidationError("title", fmt.Sprintf("must be at most %d characters", model.MaxTitleLength))
	}
	out := Input{Title: title}

	if in.Description != nil {
		if len(*in.Description) > maxDescriptionLength {
			return in, model.NewValidationError("description", fmt.Sprintf("must be at most %d bytes", maxDescriptionLength))
		}
		desc := strings.TrimSpace(*in.Description)
		if s.sanitizer != nil {
			desc = s.sanitizer.SanitizeHTML(desc)
		}
		if desc != "" {
			out.Description = &desc
		}
	}

	if in.URL != nil {
		u := strings.TrimSpace(*in.URL)
		if u != "" {
			if s.guard != nil {
				if err := s.guard.ValidateURL(u); err != nil {
					return in, model.NewInvalidURLError(err.Error())
				}
			}
			out.URL = &u
		}
	}
	return out, nil
}

// CreateArticle は記事を作成する。作成者はuserIDになる。
func (s *Service) CreateArticle(ctx context.Context, userID string, in Input) (*model.Article, error) {
	in, err := s.normalize(in)
	if err != nil {
		s.metrics.RecordOperation("article.create", metrics.OutcomeOf(err))
		return nil, err
	}

	now := s.now()
	article := &model.Article{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		URL:         in.URL,
		CreatedBy:   &userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.Repos().Articles.Create(ctx, article)
	s.metrics.RecordOperation("article.create", metrics.OutcomeOf(err))
	if err != nil {
		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	slog.Info("article created",
		slog.String("article_id", article.ID),
		slog.String("user_id", userID),
	)
	return article, nil
}

// UpdateArticle は記事を更新する。作成者のみ実行できる。
// 記事を紹介しているイベントのビューを無効化する。
func (s *Service) UpdateArticle(ctx context.Context, articleID, actingUserID string, in Input) (*model.Article, error) {
	in, err := s.normalize(in)
	if err != nil {
		s.metrics.RecordOperation("article.update", metrics.OutcomeOf(err))
		return nil, err
	}

	var updated *model.Article
	err = invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		article, err := r.Articles.FindByID(ctx, articleID)
		if err != nil {
			return fmt.Errorf("failed to find article: %w", err)
		}
		if article == nil {
			return model.NewArticleNotFoundError(articleID)
		}
		if article.CreatedBy == nil || *article.CreatedBy != actingUserID {
			return model.NewArticleForbiddenError(articleID)
		}

		article.Title = in.Title
		article.Description = in.Description
		article.URL = in.URL
		article.UpdatedAt = s.now()
		if err := r.Articles.Update(ctx, article); err != nil {
			return fmt.Errorf("failed to update article: %w", err)
		}

		eventIDs, err := r.Speakers.ListEventIDsByArticle(ctx, articleID)
		if err != nil {
			return fmt.Errorf("failed to list events by article: %w", err)
		}
		for _, id := range eventIDs {
			b.Add(invalidation.EventKey(id))
		}
		updated = article
		return nil
	})
	s.metrics.RecordOperation("article.update", metrics.OutcomeOf(err))
	if err != nil {
		return nil, err
	}

	slog.Info("article updated",
		slog.String("article_id", articleID),
		slog.String("user_id", actingUserID),
	)
	return updated, nil
}

// GetArticle は記事を返す。
func (s *Service) GetArticle(ctx context.Context, articleID string) (*model.Article, error) {
	article, err := s.store.Repos().Articles.FindByID(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}
	if article == nil {
		return nil, model.NewArticleNotFoundError(articleID)
	}
	return article, nil
}
