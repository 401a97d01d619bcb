// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はドメインエラーの分類を表す。
// HTTPステータスへの変換はハンドラー層が担う。
type ErrorKind string

const (
	KindUnauthenticated  ErrorKind = "unauthenticated"
	KindForbidden        ErrorKind = "forbidden"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindValidation       ErrorKind = "validation"
	KindInvalidOperation ErrorKind = "invalid_operation"
	KindInternal         ErrorKind = "internal"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // エラー分類
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, event, system
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// KindOf はエラーチェーンからAPIErrorを探し、その分類を返す。
// APIErrorを含まない場合はKindInternalを返す。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// IsKind はエラーが指定分類のAPIErrorを含むかを返す。
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated   = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeAdminRequired     = "ADMIN_REQUIRED"
	ErrCodeEventNotFound     = "EVENT_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeOwnerNotFound     = "OWNER_NOT_FOUND"
	ErrCodeTimerNotFound     = "TIMER_NOT_FOUND"
	ErrCodeArticleNotFound   = "ARTICLE_NOT_FOUND"
	ErrCodeSpeakerNotFound   = "SPEAKER_NOT_FOUND"
	ErrCodeDuplicateOwner    = "DUPLICATE_OWNER"
	ErrCodeDuplicateSpeaker  = "DUPLICATE_SPEAKER"
	ErrCodeDuplicateUser     = "DUPLICATE_USER"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInvalidDuration   = "INVALID_DURATION"
	ErrCodeInvalidAttendance = "INVALID_ATTENDANCE"
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeInvalidRole       = "INVALID_ROLE"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeInvalidOrder      = "INVALID_TIMER_ORDER"
	ErrCodeSelfRemoval       = "SELF_REMOVAL"
	ErrCodeLastAdmin         = "LAST_ADMIN"
)

// NewUnauthenticatedError は認証情報がない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Kind:     KindUnauthenticated,
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError はイベントのオーナーでないユーザーが操作した場合のエラーを生成する。
func NewForbiddenError(eventID string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("このイベントを操作する権限がありません: %s", eventID),
		Category: "auth",
		Action:   "イベントの管理者にオーナーへの追加を依頼してください。",
	}
}

// NewAdminRequiredError は管理者権限が必要な操作をメンバーが行った場合のエラーを生成する。
func NewAdminRequiredError(eventID string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeAdminRequired,
		Message:  fmt.Sprintf("この操作にはイベントの管理者権限が必要です: %s", eventID),
		Category: "auth",
		Action:   "イベントの管理者に操作を依頼してください。",
	}
}

// NewArticleForbiddenError は作成者以外が記事を更新しようとした場合のエラーを生成する。
func NewArticleForbiddenError(articleID string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この記事を編集する権限がありません: %s", articleID),
		Category: "auth",
		Action:   "記事の作成者に編集を依頼してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "event",
		Action:   "イベントIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスを確認してください。対象ユーザーは一度ログインしている必要があります。",
	}
}

// NewOwnerNotFoundError はオーナー未検出エラーを生成する。
func NewOwnerNotFoundError(ownerID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeOwnerNotFound,
		Message:  fmt.Sprintf("指定されたオーナーが見つかりません: %s", ownerID),
		Category: "event",
		Action:   "オーナー一覧を再読み込みしてください。",
	}
}

// NewTimerNotFoundError はタイマー未検出エラーを生成する。
func NewTimerNotFoundError(timerID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeTimerNotFound,
		Message:  fmt.Sprintf("指定されたタイマーが見つかりません: %s", timerID),
		Category: "event",
		Action:   "タイマー一覧を再読み込みしてください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "event",
		Action:   "記事IDを確認してください。",
	}
}

// NewSpeakerNotFoundError はスピーカー未検出エラーを生成する。
func NewSpeakerNotFoundError(userID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeSpeakerNotFound,
		Message:  fmt.Sprintf("指定されたスピーカーが見つかりません: %s", userID),
		Category: "event",
		Action:   "スピーカー一覧を再読み込みしてください。",
	}
}

// NewDuplicateOwnerError は既にオーナーであるユーザーを追加しようとした場合のエラーを生成する。
func NewDuplicateOwnerError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateOwner,
		Message:  "このユーザーは既にイベントのオーナーです。",
		Category: "event",
		Action:   "オーナー一覧から該当ユーザーを確認してください。",
	}
}

// NewDuplicateSpeakerError は既にスピーカーであるユーザーを追加しようとした場合のエラーを生成する。
func NewDuplicateSpeakerError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateSpeaker,
		Message:  "このユーザーは既にイベントのスピーカーです。",
		Category: "event",
		Action:   "スピーカー一覧から該当ユーザーを確認してください。",
	}
}

// NewDuplicateUserError はユーザー作成時に一意制約違反が解消できなかった場合のエラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateUser,
		Message:  "同じメールアドレスのユーザーが既に存在します。",
		Category: "auth",
		Action:   "以前ログインしたアカウントでログインしてください。",
	}
}

// NewValidationError は入力値がドメイン制約を満たさない場合の汎用エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力値が不正です (%s): %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidDurationError はタイマーの時間が範囲外の場合のエラーを生成する。
func NewInvalidDurationError(minutes, max int) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("無効なタイマー時間です: %d分", minutes),
		Category: "validation",
		Action:   fmt.Sprintf("タイマー時間は1分から%d分の範囲で指定してください。", max),
	}
}

// NewInvalidAttendanceError は参加者数が範囲外の場合のエラーを生成する。
func NewInvalidAttendanceError(value, max int) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidAttendance,
		Message:  fmt.Sprintf("無効な参加者数です: %d", value),
		Category: "validation",
		Action:   fmt.Sprintf("参加者数は0から%dの整数で指定してください。", max),
	}
}

// NewInvalidEmailError はメールアドレスの形式が不正な場合のエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewInvalidRoleError はオーナーロールが不正な場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには admin または member を指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "公開されているWebサイトのURL（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewInvalidTimerOrderError は並び替えリストがイベントのタイマー集合と一致しない場合のエラーを生成する。
func NewInvalidTimerOrderError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidOrder,
		Message:  fmt.Sprintf("タイマーの並び順が不正です: %s", reason),
		Category: "validation",
		Action:   "タイマー一覧を再読み込みしてから並び替えてください。",
	}
}

// NewSelfRemovalError は自分自身をオーナーから外そうとした場合のエラーを生成する。
func NewSelfRemovalError() *APIError {
	return &APIError{
		Kind:     KindInvalidOperation,
		Code:     ErrCodeSelfRemoval,
		Message:  "自分自身をオーナーから外すことはできません。",
		Category: "event",
		Action:   "他の管理者に操作を依頼してください。",
	}
}

// NewLastAdminError はイベントから最後の管理者がいなくなる操作のエラーを生成する。
func NewLastAdminError(eventID string) *APIError {
	return &APIError{
		Kind:     KindInvalidOperation,
		Code:     ErrCodeLastAdmin,
		Message:  fmt.Sprintf("イベントには少なくとも1人の管理者が必要です: %s", eventID),
		Category: "event",
		Action:   "先に別のオーナーを管理者に昇格してください。",
	}
}
