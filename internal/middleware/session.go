// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

type contextKey string

var (
	userIDContextKey  = contextKey("user_id")
	logUserContextKey = contextKey("log_user")
)

// logUserHolder は内側のミドルウェアで確定したユーザーIDをアクセスログへ渡す。
type logUserHolder struct {
	userID string
}

func withLogUserHolder(ctx context.Context, h *logUserHolder) context.Context {
	return context.WithValue(ctx, logUserContextKey, h)
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はCookieのセッションを検証し、ユーザーIDをコンテキストに注入するミドルウェアを返す。
// セッションがない、または期限切れの場合は401を返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteAPIError(w, model.NewUnauthenticatedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				WriteAPIError(w, model.NewUnauthenticatedError())
				return
			}
			if session == nil {
				WriteAPIError(w, model.NewUnauthenticatedError())
				return
			}

			if h, ok := r.Context().Value(logUserContextKey).(*logUserHolder); ok {
				h.userID = session.UserID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ユーザーIDがない場合はUnauthenticatedのAPIErrorを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", model.NewUnauthenticatedError()
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
