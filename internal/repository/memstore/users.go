package memstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

type userRepo struct{ b *binding }

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	s, done := r.b.enter()
	defer done()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	s, done := r.b.enter()
	defer done()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *userRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	s, done := r.b.enter()
	defer done()
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("failed to insert user: %w (users_pkey)", repository.ErrDuplicate)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("failed to insert user: %w (idx_users_email_lower)", repository.ErrDuplicate)
		}
	}
	for _, i := range s.identities {
		if i.Provider == identity.Provider && i.ProviderUserID == identity.ProviderUserID {
			return fmt.Errorf("failed to insert identity: %w (uq_identities_provider)", repository.ErrDuplicate)
		}
	}
	s.users[user.ID] = *user
	s.identities[identity.ID] = *identity
	return nil
}

func (r *userRepo) UpdateProfile(ctx context.Context, id, name, avatarURL string, updatedAt time.Time) error {
	s, done := r.b.enter()
	defer done()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.Name = name
	u.AvatarURL = avatarURL
	u.UpdatedAt = updatedAt
	s.users[id] = u
	return nil
}

// DeleteByID はユーザーを削除し、外部キーのCASCADE / SET NULLを再現する。
func (r *userRepo) DeleteByID(ctx context.Context, id string) error {
	s, done := r.b.enter()
	defer done()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	delete(s.users, id)
	for k, v := range s.identities {
		if v.UserID == id {
			delete(s.identities, k)
		}
	}
	for k, v := range s.sessions {
		if v.UserID == id {
			delete(s.sessions, k)
		}
	}
	for k, v := range s.owners {
		if v.UserID == id {
			delete(s.owners, k)
		}
	}
	for k, v := range s.speakers {
		if v.UserID == id {
			delete(s.speakers, k)
		}
	}
	for k, v := range s.articles {
		if v.CreatedBy != nil && *v.CreatedBy == id {
			v.CreatedBy = nil
			s.articles[k] = v
		}
	}
	return nil
}

type identityRepo struct{ b *binding }

func (r *identityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	s, done := r.b.enter()
	defer done()
	for _, i := range s.identities {
		if i.Provider == provider && i.ProviderUserID == providerUserID {
			return &i, nil
		}
	}
	return nil, nil
}

type sessionRepo struct{ b *binding }

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	s, done := r.b.enter()
	defer done()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("failed to create session: %w", repository.ErrDuplicate)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s, done := r.b.enter()
	defer done()
	sess, ok := s.sessions[id]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &sess, nil
}

func (r *sessionRepo) DeleteByID(ctx context.Context, id string) error {
	s, done := r.b.enter()
	defer done()
	delete(s.sessions, id)
	return nil
}

func (r *sessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	s, done := r.b.enter()
	defer done()
	for k, v := range s.sessions {
		if v.UserID == userID {
			delete(s.sessions, k)
		}
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s, done := r.b.enter()
	defer done()
	var n int64
	for k, v := range s.sessions {
		if !v.ExpiresAt.After(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

type articleRepo struct{ b *binding }

func (r *articleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	s, done := r.b.enter()
	defer done()
	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *articleRepo) Create(ctx context.Context, article *model.Article) error {
	s, done := r.b.enter()
	defer done()
	if _, ok := s.articles[article.ID]; ok {
		return fmt.Errorf("failed to create article: %w", repository.ErrDuplicate)
	}
	s.articles[article.ID] = *article
	return nil
}

func (r *articleRepo) Update(ctx context.Context, article *model.Article) error {
	s, done := r.b.enter()
	defer done()
	a, ok := s.articles[article.ID]
	if !ok {
		return nil
	}
	a.Title = article.Title
	a.Description = article.Description
	a.URL = article.URL
	a.UpdatedAt = article.UpdatedAt
	s.articles[article.ID] = a
	return nil
}

var (
	_ repository.UserRepository     = (*userRepo)(nil)
	_ repository.IdentityRepository = (*identityRepo)(nil)
	_ repository.SessionRepository  = (*sessionRepo)(nil)
	_ repository.ArticleRepository  = (*articleRepo)(nil)
)
