package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// PostgresTimerRepo はPostgreSQLを使用したタイマーリポジトリ。
// (event_id, sequence) の一意制約はDEFERRABLE INITIALLY DEFERREDのため、
// トランザクション途中の一時的な重複は許容される。
type PostgresTimerRepo struct {
	q DBTX
}

// NewPostgresTimerRepo はPostgresTimerRepoを生成する。
func NewPostgresTimerRepo(q DBTX) *PostgresTimerRepo {
	return &PostgresTimerRepo{q: q}
}

// FindByID は指定IDのタイマーを取得する。見つからない場合はnilを返す。
func (r *PostgresTimerRepo) FindByID(ctx context.Context, id string) (*model.Timer, error) {
	timer := &model.Timer{}
	err := r.q.QueryRowContext(ctx,
		`SELECT id, event_id, duration_minutes, sequence, created_at FROM timers WHERE id = $1`,
		id,
	).Scan(&timer.ID, &timer.EventID, &timer.DurationMinutes, &timer.Sequence, &timer.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find timer: %w", err)
	}
	return timer, nil
}

// ListByEvent はイベントのタイマーを(sequence, created_at, id)の昇順で返す。
func (r *PostgresTimerRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Timer, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, event_id, duration_minutes, sequence, created_at
		 FROM timers WHERE event_id = $1
		 ORDER BY sequence, created_at, id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	defer rows.Close()

	var timers []model.Timer
	for rows.Next() {
		var t model.Timer
		if err := rows.Scan(&t.ID, &t.EventID, &t.DurationMinutes, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timers: %w", err)
	}
	return timers, nil
}

// MaxSequence はイベント内の最大sequenceを返す。タイマーがない場合は0を返す。
func (r *PostgresTimerRepo) MaxSequence(ctx context.Context, eventID string) (int, error) {
	var max int
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM timers WHERE event_id = $1`,
		eventID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return max, nil
}

// Create はタイマーを作成する。
func (r *PostgresTimerRepo) Create(ctx context.Context, timer *model.Timer) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO timers (id, event_id, duration_minutes, sequence, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		timer.ID, timer.EventID, timer.DurationMinutes, timer.Sequence, timer.CreatedAt,
	)
	if err != nil {
		return mapWriteError(err, "failed to create timer")
	}
	return nil
}

// UpdateDuration はタイマーの時間（分）を更新する。
func (r *PostgresTimerRepo) UpdateDuration(ctx context.Context, id string, minutes int) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE timers SET duration_minutes = $2 WHERE id = $1`,
		id, minutes,
	)
	if err != nil {
		return fmt.Errorf("failed to update timer: %w", err)
	}
	return nil
}

// Delete は指定IDのタイマーを削除する。
func (r *PostgresTimerRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM timers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete timer: %w", err)
	}
	return nil
}

// Renumber はイベントの全タイマーを現在の(sequence, created_at, id)順で1..Nに振り直す。
func (r *PostgresTimerRepo) Renumber(ctx context.Context, eventID string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE timers t
		 SET sequence = ranked.rn
		 FROM (
		   SELECT id, ROW_NUMBER() OVER (ORDER BY sequence, created_at, id) AS rn
		   FROM timers WHERE event_id = $1
		 ) ranked
		 WHERE t.id = ranked.id AND t.sequence <> ranked.rn`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to renumber timers: %w", err)
	}
	return nil
}

// AssignSequences はorderedIDsの順にsequence=位置+1を割り当てる。
func (r *PostgresTimerRepo) AssignSequences(ctx context.Context, eventID string, orderedIDs []string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE timers t
		 SET sequence = ord.pos
		 FROM unnest($2::text[]) WITH ORDINALITY AS ord(id, pos)
		 WHERE t.event_id = $1 AND t.id::text = ord.id`,
		eventID, pq.Array(orderedIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to assign timer sequences: %w", err)
	}
	return nil
}

// DeleteByEventID はイベントの全タイマーを削除し、削除件数を返す。
func (r *PostgresTimerRepo) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	return execCount(ctx, r.q, "failed to delete timers",
		`DELETE FROM timers WHERE event_id = $1`,
		eventID,
	)
}

// compile-time interface check
var _ TimerRepository = (*PostgresTimerRepo)(nil)
