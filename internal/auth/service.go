// Package auth はOAuth認証フロー、ユーザーの解決、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	store     repository.Store
	publisher invalidation.Publisher
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, store repository.Store, publisher invalidation.Publisher, config ServiceConfig) *Service {
	return &Service{
		oauth:     oauth,
		store:     store,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. ユーザーを特定（未登録なら作成）
	user, err := s.ResolveOrCreateUser(ctx, *info)
	if err != nil {
		return nil, err
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ResolveOrCreateUser は外部IdPのユーザー情報から内部ユーザーを特定する。
// 登録済みの場合はプロフィール（名前、アバター）の変更を反映する。
// 未登録の場合はusersとidentitiesを同一トランザクションで作成する。
// 同時ログインで一意制約に違反した場合は、先に作成されたユーザーを読み直して返す。
func (s *Service) ResolveOrCreateUser(ctx context.Context, info OAuthUserInfo) (*model.User, error) {
	if strings.TrimSpace(info.ProviderUserID) == "" || info.Provider == "" {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.findByIdentity(ctx, info)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return s.syncProfile(ctx, user, info)
	}

	user, err = s.createUser(ctx, info)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, err
	}

	// 同じidentityが並行して作成された
	user, refetchErr := s.findByIdentity(ctx, info)
	if refetchErr != nil {
		return nil, refetchErr
	}
	if user == nil {
		// メールアドレスが別のidentityで使用されている
		slog.Warn("user creation conflicted",
			slog.String("provider", info.Provider),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDuplicateUserError()
	}
	return user, nil
}

func (s *Service) findByIdentity(ctx context.Context, info OAuthUserInfo) (*model.User, error) {
	r := s.store.Repos()
	identity, err := r.Identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, nil
	}

	user, err := r.Users.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

func (s *Service) createUser(ctx context.Context, info OAuthUserInfo) (*model.User, error) {
	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	err := s.store.WithinTx(ctx, func(r *repository.Repos) error {
		return r.Users.CreateWithIdentity(ctx, user, identity)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

// syncProfile はIdPのプロフィールが変わっていれば保存する。
func (s *Service) syncProfile(ctx context.Context, user *model.User, info OAuthUserInfo) (*model.User, error) {
	name := info.Name
	if name == "" {
		name = user.Name
	}
	if name == user.Name && info.AvatarURL == user.AvatarURL {
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
		return user, nil
	}

	now := s.now()
	err := invalidation.WithinTx(ctx, s.store, s.publisher, func(r *repository.Repos, b *invalidation.Batch) error {
		if err := r.Users.UpdateProfile(ctx, user.ID, name, info.AvatarURL, now); err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		b.Add(invalidation.UserKey(user.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}

	user.Name = name
	user.AvatarURL = info.AvatarURL
	user.UpdatedAt = now
	slog.Info("existing user logged in with updated profile",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.store.Repos().Sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効な場合はUnauthenticatedエラーを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	r := s.store.Repos()
	session, err := r.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := r.Users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.store.Repos().Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
