package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	q DBTX
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(q DBTX) *PostgresEventRepo {
	return &PostgresEventRepo{q: q}
}

const eventColumns = `e.id, e.title, e.event_url, e.attendance, e.link_title, e.favicon_data, e.favicon_mime, e.created_at, e.updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	event := &model.Event{}
	var faviconMime sql.NullString
	err := row.Scan(
		&event.ID, &event.Title, &event.EventURL, &event.Attendance,
		&event.LinkTitle, &event.FaviconData, &faviconMime,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.FaviconMime = faviconMime.String
	return event, nil
}

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	event, err := scanEvent(r.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return event, nil
}

// LockByID は指定IDのイベントを行ロック付きで取得する。
// 同一イベントへの変更はこのロックで直列化される。
func (r *PostgresEventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	event, err := scanEvent(r.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1 FOR UPDATE`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return event, nil
}

// ListByOwner は指定ユーザーがオーナーであるイベントを作成日時の新しい順に返す。
func (r *PostgresEventRepo) ListByOwner(ctx context.Context, userID string) ([]*model.Event, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 INNER JOIN owners o ON o.event_id = e.id
		 WHERE o.user_id = $1
		 ORDER BY e.created_at DESC, e.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by owner: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO events (id, title, event_url, attendance, link_title, favicon_data, favicon_mime, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Title, event.EventURL, event.Attendance,
		event.LinkTitle, event.FaviconData, nullString(event.FaviconMime),
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "failed to create event")
	}
	return nil
}

// Update はタイトル、URL、リンクプレビュー情報を更新する。
func (r *PostgresEventRepo) Update(ctx context.Context, event *model.Event) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE events
		 SET title = $2, event_url = $3, link_title = $4, favicon_data = $5, favicon_mime = $6, updated_at = $7
		 WHERE id = $1`,
		event.ID, event.Title, event.EventURL, event.LinkTitle,
		event.FaviconData, nullString(event.FaviconMime), event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// AddAttendance は参加者数に差分を加算し、更新後の値を返す。
// 範囲外になる場合はCHECK制約違反となる。
func (r *PostgresEventRepo) AddAttendance(ctx context.Context, id string, delta int) (int, error) {
	var attendance int
	err := r.q.QueryRowContext(ctx,
		`UPDATE events SET attendance = attendance + $2, updated_at = now()
		 WHERE id = $1
		 RETURNING attendance`,
		id, delta,
	).Scan(&attendance)
	if err != nil {
		return 0, fmt.Errorf("failed to update attendance: %w", err)
	}
	return attendance, nil
}

// Delete は指定IDのイベントを削除する。
func (r *PostgresEventRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
