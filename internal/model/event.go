package model

import (
	"strings"
	"time"
)

const (
	// MaxAttendance は参加者数の上限。
	MaxAttendance = 10000
	// MaxTimerMinutes はタイマー1枠の上限（分）。
	MaxTimerMinutes = 300
	// MaxTitleLength はイベント・記事タイトルの最大文字数。
	MaxTitleLength = 200
	// MaxSpeakerRoleLength はスピーカーロールの最大文字数。
	MaxSpeakerRoleLength = 50
	// DefaultSpeakerRole はロール未指定時のスピーカーロール。
	DefaultSpeakerRole = "speaker"
)

// Event はテックイベントを表す。
type Event struct {
	ID          string
	Title       string
	EventURL    *string
	Attendance  int
	LinkTitle   *string
	FaviconData []byte
	FaviconMime string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role はイベントオーナーのロールを表す。
type Role string

const (
	// RoleAdmin はオーナー管理とロール変更が可能なロール。
	RoleAdmin Role = "admin"
	// RoleMember はイベントの編集のみ可能なロール。
	RoleMember Role = "member"
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMember:
		return RoleMember, true
	default:
		return "", false
	}
}

// Owner はイベントとユーザーの管理関係を表す。
// (EventID, UserID) はDB上で一意。
type Owner struct {
	ID        string
	EventID   string
	UserID    string
	Role      Role
	CreatedAt time.Time
}

// OwnerWithUser はオーナーとユーザープロフィールを結合したモデル。
type OwnerWithUser struct {
	Owner
	Email     string
	Name      string
	AvatarURL string
}

// Speaker はイベントの登壇者を表す。
// (EventID, UserID) はDB上で一意。
type Speaker struct {
	ID        string
	EventID   string
	UserID    string
	ArticleID *string
	Role      string
	CreatedAt time.Time
}

// SpeakerWithUser はスピーカーとユーザープロフィール、記事タイトルを結合したモデル。
type SpeakerWithUser struct {
	Speaker
	Email        string
	Name         string
	AvatarURL    string
	ArticleTitle *string
}

// Article はスピーカーが紹介する記事・スライドを表す。
type Article struct {
	ID          string
	Title       string
	Description *string // サニタイズ済みHTML
	URL         *string
	CreatedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Timer はイベントのカウントダウンタイマーの1枠を表す。
// 同一イベント内のSequenceは常に1..Nの連番となる。
type Timer struct {
	ID              string
	EventID         string
	DurationMinutes int
	Sequence        int
	CreatedAt       time.Time
}

// EventDetail はイベント詳細画面に必要な情報をまとめたビュー。
type EventDetail struct {
	Event    Event
	Owners   []OwnerWithUser
	Speakers []SpeakerWithUser
	Timers   []Timer
}
