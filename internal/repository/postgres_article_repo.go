package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	q DBTX
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(q DBTX) *PostgresArticleRepo {
	return &PostgresArticleRepo{q: q}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	a := &model.Article{}
	err := r.q.QueryRowContext(ctx,
		`SELECT id, title, description, url, created_by, created_at, updated_at
		 FROM articles WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Title, &a.Description, &a.URL, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}
	return a, nil
}

// Create は記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, a *model.Article) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO articles (id, title, description, url, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Title, a.Description, a.URL, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "failed to create article")
	}
	return nil
}

// Update は記事のタイトル、説明、URLを更新する。
func (r *PostgresArticleRepo) Update(ctx context.Context, a *model.Article) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE articles SET title = $2, description = $3, url = $4, updated_at = $5 WHERE id = $1`,
		a.ID, a.Title, a.Description, a.URL, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
