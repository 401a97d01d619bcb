// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
// 実装はドライバ固有のエラーをこの値でラップして返す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを作成する。
	// 一意制約違反の場合はErrDuplicateをラップしたエラーを返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile は表示名とアバターURLを更新する。
	UpdateProfile(ctx context.Context, id, name, avatarURL string, updatedAt time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentitiesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// LockByID は指定IDのイベントを行ロック付き（FOR UPDATE）で取得する。
	// トランザクション内でのみ意味を持つ。見つからない場合はnilを返す。
	LockByID(ctx context.Context, id string) (*model.Event, error)

	// ListByOwner は指定ユーザーがオーナーであるイベントを作成日時の新しい順に返す。
	ListByOwner(ctx context.Context, userID string) ([]*model.Event, error)

	// Create はイベントを作成する。
	Create(ctx context.Context, event *model.Event) error

	// Update はタイトル、URL、リンクプレビュー情報を更新する。
	Update(ctx context.Context, event *model.Event) error

	// AddAttendance は参加者数に差分を加算し、更新後の値を返す。
	AddAttendance(ctx context.Context, id string, delta int) (int, error)

	// Delete は指定IDのイベントを削除する。
	Delete(ctx context.Context, id string) error
}

// OwnerRepository はイベントオーナーの永続化インターフェース。
type OwnerRepository interface {
	// FindByID は指定IDのオーナーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Owner, error)

	// FindByEventAndUser はイベントIDとユーザーIDでオーナーを取得する。見つからない場合はnilを返す。
	FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Owner, error)

	// ListByEvent はイベントのオーナー一覧をユーザー情報付きで返す。
	// 管理者、作成日時の順に並ぶ。
	ListByEvent(ctx context.Context, eventID string) ([]model.OwnerWithUser, error)

	// CountAdmins はイベントの管理者数を返す。
	CountAdmins(ctx context.Context, eventID string) (int, error)

	// ListSoleAdminEventIDs は指定ユーザーが唯一の管理者であるイベントIDを返す。
	ListSoleAdminEventIDs(ctx context.Context, userID string) ([]string, error)

	// ListEventIDsByUser は指定ユーザーがオーナーであるイベントIDを返す。
	ListEventIDsByUser(ctx context.Context, userID string) ([]string, error)

	// Create はオーナーを作成する。
	// (event_id, user_id) の一意制約違反の場合はErrDuplicateをラップしたエラーを返す。
	Create(ctx context.Context, owner *model.Owner) error

	// UpdateRole はオーナーのロールを更新する。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// DeleteByEventAndUser はイベントIDとユーザーIDでオーナーを削除し、削除件数を返す。
	DeleteByEventAndUser(ctx context.Context, eventID, userID string) (int, error)

	// DeleteByEventID はイベントの全オーナーを削除し、削除件数を返す。
	DeleteByEventID(ctx context.Context, eventID string) (int, error)

	// DeleteByUserID はユーザーの全オーナー行を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// TimerRepository はカウントダウンタイマーの永続化インターフェース。
type TimerRepository interface {
	// FindByID は指定IDのタイマーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Timer, error)

	// ListByEvent はイベントのタイマーを(sequence, created_at, id)の昇順で返す。
	ListByEvent(ctx context.Context, eventID string) ([]model.Timer, error)

	// MaxSequence はイベント内の最大sequenceを返す。タイマーがない場合は0を返す。
	MaxSequence(ctx context.Context, eventID string) (int, error)

	// Create はタイマーを作成する。
	Create(ctx context.Context, timer *model.Timer) error

	// UpdateDuration はタイマーの時間（分）を更新する。
	UpdateDuration(ctx context.Context, id string, minutes int) error

	// Delete は指定IDのタイマーを削除する。
	Delete(ctx context.Context, id string) error

	// Renumber はイベントの全タイマーを現在の(sequence, created_at, id)順で1..Nに振り直す。
	Renumber(ctx context.Context, eventID string) error

	// AssignSequences はorderedIDsの順にsequence=位置+1を割り当てる。
	// 集合の一致検証は呼び出し側で行う。
	AssignSequences(ctx context.Context, eventID string, orderedIDs []string) error

	// DeleteByEventID はイベントの全タイマーを削除し、削除件数を返す。
	DeleteByEventID(ctx context.Context, eventID string) (int, error)
}

// SpeakerRepository はスピーカーの永続化インターフェース。
type SpeakerRepository interface {
	// FindByEventAndUser はイベントIDとユーザーIDでスピーカーを取得する。見つからない場合はnilを返す。
	FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Speaker, error)

	// ListByEvent はイベントのスピーカー一覧をユーザー情報・記事タイトル付きで返す。
	ListByEvent(ctx context.Context, eventID string) ([]model.SpeakerWithUser, error)

	// ListEventIDsByArticle は指定記事を紹介しているスピーカーのイベントIDを返す。
	ListEventIDsByArticle(ctx context.Context, articleID string) ([]string, error)

	// Create はスピーカーを作成する。
	// (event_id, user_id) の一意制約違反の場合はErrDuplicateをラップしたエラーを返す。
	Create(ctx context.Context, speaker *model.Speaker) error

	// Update はスピーカーのロールと記事を更新する。
	Update(ctx context.Context, speaker *model.Speaker) error

	// DeleteByEventAndUser はイベントIDとユーザーIDでスピーカーを削除し、削除件数を返す。
	DeleteByEventAndUser(ctx context.Context, eventID, userID string) (int, error)

	// DeleteByEventID はイベントの全スピーカーを削除し、削除件数を返す。
	DeleteByEventID(ctx context.Context, eventID string) (int, error)

	// DeleteByUserID はユーザーの全スピーカー行を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ArticleRepository は記事の永続化インターフェース。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// Create は記事を作成する。
	Create(ctx context.Context, article *model.Article) error

	// Update は記事のタイトル、説明、URLを更新する。
	Update(ctx context.Context, article *model.Article) error
}

// Repos は同一の接続（DBまたはトランザクション）に束縛されたリポジトリ群。
type Repos struct {
	Users      UserRepository
	Identities IdentityRepository
	Sessions   SessionRepository
	Events     EventRepository
	Owners     OwnerRepository
	Timers     TimerRepository
	Speakers   SpeakerRepository
	Articles   ArticleRepository
}

// Store はリポジトリ群とトランザクション境界を提供する。
type Store interface {
	// Repos はトランザクション外で使用するリポジトリ群を返す。
	Repos() *Repos

	// WithinTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
	// fnは直列化失敗時に再実行されることがあるため、副作用をDB外に持たないこと。
	WithinTx(ctx context.Context, fn func(r *Repos) error) error
}

// DBTX は*sql.DBと*sql.Txに共通するクエリ実行インターフェース。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
