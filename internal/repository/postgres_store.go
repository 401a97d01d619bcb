package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// retryBaseDelay は直列化失敗時の再実行までの初回待機時間。
const retryBaseDelay = 10 * time.Millisecond

// PostgresStoreConfig はPostgresStoreの設定。
type PostgresStoreConfig struct {
	// MaxRetries は直列化失敗・デッドロック時の最大再実行回数。
	MaxRetries int
	// OnRetry は再実行のたびに呼ばれる。メトリクス記録用。nilでもよい。
	OnRetry func(attempt int, err error)
}

// PostgresStore はPostgreSQLを使用したStore実装。
// トランザクションはREPEATABLE READで実行する。
type PostgresStore struct {
	db     *sql.DB
	config PostgresStoreConfig
	repos  *Repos
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB, config PostgresStoreConfig) *PostgresStore {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &PostgresStore{
		db:     db,
		config: config,
		repos:  newPostgresRepos(db),
	}
}

// newPostgresRepos は指定の接続に束縛されたリポジトリ群を生成する。
func newPostgresRepos(q DBTX) *Repos {
	return &Repos{
		Users:      NewPostgresUserRepo(q),
		Identities: NewPostgresIdentityRepo(q),
		Sessions:   NewPostgresSessionRepo(q),
		Events:     NewPostgresEventRepo(q),
		Owners:     NewPostgresOwnerRepo(q),
		Timers:     NewPostgresTimerRepo(q),
		Speakers:   NewPostgresSpeakerRepo(q),
		Articles:   NewPostgresArticleRepo(q),
	}
}

// Repos はトランザクション外で使用するリポジトリ群を返す。
func (s *PostgresStore) Repos() *Repos {
	return s.repos
}

// WithinTx はfnをREPEATABLE READトランザクション内で実行する。
// 直列化失敗（40001）とデッドロック（40P01）の場合はトランザクション全体を再実行する。
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(r *Repos) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) || attempt >= s.config.MaxRetries {
			return err
		}

		if s.config.OnRetry != nil {
			s.config.OnRetry(attempt+1, err)
		}
		slog.Warn("transaction retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)

		delay := retryBaseDelay << attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runTx は1回分のトランザクションを実行する。
func (s *PostgresStore) runTx(ctx context.Context, fn func(r *Repos) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPostgresRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isRetryable はトランザクションの再実行で解消しうるエラーかを判定する。
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
}

// mapWriteError は書き込み系クエリのエラーを変換する。
// 一意制約違反はErrDuplicateでラップする。
func mapWriteError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%s: %w (%s)", op, ErrDuplicate, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
