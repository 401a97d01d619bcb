package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// PostgresSpeakerRepo はPostgreSQLを使用したスピーカーリポジトリ。
type PostgresSpeakerRepo struct {
	q DBTX
}

// NewPostgresSpeakerRepo はPostgresSpeakerRepoを生成する。
func NewPostgresSpeakerRepo(q DBTX) *PostgresSpeakerRepo {
	return &PostgresSpeakerRepo{q: q}
}

// FindByEventAndUser はイベントIDとユーザーIDでスピーカーを取得する。見つからない場合はnilを返す。
func (r *PostgresSpeakerRepo) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Speaker, error) {
	s := &model.Speaker{}
	err := r.q.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, article_id, role, created_at
		 FROM speakers WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&s.ID, &s.EventID, &s.UserID, &s.ArticleID, &s.Role, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find speaker: %w", err)
	}
	return s, nil
}

// ListByEvent はイベントのスピーカー一覧をユーザー情報・記事タイトル付きで返す。
func (r *PostgresSpeakerRepo) ListByEvent(ctx context.Context, eventID string) ([]model.SpeakerWithUser, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT s.id, s.event_id, s.user_id, s.article_id, s.role, s.created_at,
		        u.email, u.name, u.avatar_url, a.title
		 FROM speakers s
		 INNER JOIN users u ON u.id = s.user_id
		 LEFT JOIN articles a ON a.id = s.article_id
		 WHERE s.event_id = $1
		 ORDER BY s.created_at, s.id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}
	defer rows.Close()

	var speakers []model.SpeakerWithUser
	for rows.Next() {
		var sw model.SpeakerWithUser
		if err := rows.Scan(
			&sw.ID, &sw.EventID, &sw.UserID, &sw.ArticleID, &sw.Role, &sw.CreatedAt,
			&sw.Email, &sw.Name, &sw.AvatarURL, &sw.ArticleTitle,
		); err != nil {
			return nil, fmt.Errorf("failed to scan speaker: %w", err)
		}
		speakers = append(speakers, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate speakers: %w", err)
	}
	return speakers, nil
}

// ListEventIDsByArticle は指定記事を紹介しているスピーカーのイベントIDを返す。
func (r *PostgresSpeakerRepo) ListEventIDsByArticle(ctx context.Context, articleID string) ([]string, error) {
	return queryIDs(ctx, r.q, "failed to list events by article",
		`SELECT DISTINCT event_id FROM speakers WHERE article_id = $1 ORDER BY event_id`,
		articleID,
	)
}

// Create はスピーカーを作成する。
func (r *PostgresSpeakerRepo) Create(ctx context.Context, s *model.Speaker) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO speakers (id, event_id, user_id, article_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.EventID, s.UserID, s.ArticleID, s.Role, s.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err, "failed to create speaker")
	}
	return nil
}

// Update はスピーカーのロールと記事を更新する。
func (r *PostgresSpeakerRepo) Update(ctx context.Context, s *model.Speaker) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE speakers SET role = $2, article_id = $3 WHERE id = $1`,
		s.ID, s.Role, s.ArticleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update speaker: %w", err)
	}
	return nil
}

// DeleteByEventAndUser はイベントIDとユーザーIDでスピーカーを削除し、削除件数を返す。
func (r *PostgresSpeakerRepo) DeleteByEventAndUser(ctx context.Context, eventID, userID string) (int, error) {
	return execCount(ctx, r.q, "failed to delete speaker",
		`DELETE FROM speakers WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
}

// DeleteByEventID はイベントの全スピーカーを削除し、削除件数を返す。
func (r *PostgresSpeakerRepo) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	return execCount(ctx, r.q, "failed to delete speakers",
		`DELETE FROM speakers WHERE event_id = $1`,
		eventID,
	)
}

// DeleteByUserID はユーザーの全スピーカー行を削除する。
func (r *PostgresSpeakerRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM speakers WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete speakers by user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SpeakerRepository = (*PostgresSpeakerRepo)(nil)
