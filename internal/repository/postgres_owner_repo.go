package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// PostgresOwnerRepo はPostgreSQLを使用したオーナーリポジトリ。
type PostgresOwnerRepo struct {
	q DBTX
}

// NewPostgresOwnerRepo はPostgresOwnerRepoを生成する。
func NewPostgresOwnerRepo(q DBTX) *PostgresOwnerRepo {
	return &PostgresOwnerRepo{q: q}
}

func scanOwner(row interface{ Scan(...any) error }) (*model.Owner, error) {
	owner := &model.Owner{}
	var role string
	if err := row.Scan(&owner.ID, &owner.EventID, &owner.UserID, &role, &owner.CreatedAt); err != nil {
		return nil, err
	}
	owner.Role = model.Role(role)
	return owner, nil
}

// FindByID は指定IDのオーナーを取得する。見つからない場合はnilを返す。
func (r *PostgresOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	owner, err := scanOwner(r.q.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, role, created_at FROM owners WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	return owner, nil
}

// FindByEventAndUser はイベントIDとユーザーIDでオーナーを取得する。見つからない場合はnilを返す。
func (r *PostgresOwnerRepo) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Owner, error) {
	owner, err := scanOwner(r.q.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, role, created_at
		 FROM owners WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	return owner, nil
}

// ListByEvent はイベントのオーナー一覧をユーザー情報付きで返す。
func (r *PostgresOwnerRepo) ListByEvent(ctx context.Context, eventID string) ([]model.OwnerWithUser, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT o.id, o.event_id, o.user_id, o.role, o.created_at, u.email, u.name, u.avatar_url
		 FROM owners o
		 INNER JOIN users u ON u.id = o.user_id
		 WHERE o.event_id = $1
		 ORDER BY (o.role = 'admin') DESC, o.created_at, o.id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []model.OwnerWithUser
	for rows.Next() {
		var ow model.OwnerWithUser
		var role string
		if err := rows.Scan(
			&ow.ID, &ow.EventID, &ow.UserID, &role, &ow.CreatedAt,
			&ow.Email, &ow.Name, &ow.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		ow.Role = model.Role(role)
		owners = append(owners, ow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate owners: %w", err)
	}
	return owners, nil
}

// CountAdmins はイベントの管理者数を返す。
func (r *PostgresOwnerRepo) CountAdmins(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM owners WHERE event_id = $1 AND role = 'admin'`,
		eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// ListSoleAdminEventIDs は指定ユーザーが唯一の管理者であるイベントIDを返す。
func (r *PostgresOwnerRepo) ListSoleAdminEventIDs(ctx context.Context, userID string) ([]string, error) {
	return queryIDs(ctx, r.q, "failed to list event ids",
		`SELECT o.event_id
		 FROM owners o
		 WHERE o.user_id = $1 AND o.role = 'admin'
		   AND NOT EXISTS (
		     SELECT 1 FROM owners other
		     WHERE other.event_id = o.event_id AND other.role = 'admin' AND other.user_id <> o.user_id
		   )
		 ORDER BY o.event_id`,
		userID,
	)
}

// ListEventIDsByUser は指定ユーザーがオーナーであるイベントIDを返す。
func (r *PostgresOwnerRepo) ListEventIDsByUser(ctx context.Context, userID string) ([]string, error) {
	return queryIDs(ctx, r.q, "failed to list event ids",
		`SELECT event_id FROM owners WHERE user_id = $1 ORDER BY event_id`,
		userID,
	)
}

// queryIDs は1列のID一覧を返すクエリを実行する。
func queryIDs(ctx context.Context, q DBTX, op, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event ids: %w", err)
	}
	return ids, nil
}

// Create はオーナーを作成する。
func (r *PostgresOwnerRepo) Create(ctx context.Context, owner *model.Owner) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO owners (id, event_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		owner.ID, owner.EventID, owner.UserID, string(owner.Role), owner.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err, "failed to create owner")
	}
	return nil
}

// UpdateRole はオーナーのロールを更新する。
func (r *PostgresOwnerRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE owners SET role = $2 WHERE id = $1`,
		id, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to update owner role: %w", err)
	}
	return nil
}

// DeleteByEventAndUser はイベントIDとユーザーIDでオーナーを削除し、削除件数を返す。
func (r *PostgresOwnerRepo) DeleteByEventAndUser(ctx context.Context, eventID, userID string) (int, error) {
	return execCount(ctx, r.q, "failed to delete owner",
		`DELETE FROM owners WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
}

// DeleteByEventID はイベントの全オーナーを削除し、削除件数を返す。
func (r *PostgresOwnerRepo) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	return execCount(ctx, r.q, "failed to delete owners",
		`DELETE FROM owners WHERE event_id = $1`,
		eventID,
	)
}

// DeleteByUserID はユーザーの全オーナー行を削除する。
func (r *PostgresOwnerRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM owners WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete owners by user: %w", err)
	}
	return nil
}

// execCount はクエリを実行し、影響行数を返す。
func execCount(ctx context.Context, q DBTX, op, query string, args ...any) (int, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ OwnerRepository = (*PostgresOwnerRepo)(nil)
