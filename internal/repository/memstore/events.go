package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

type eventRepo struct{ b *binding }

func (r *eventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	s, done := r.b.enter()
	defer done()
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// LockByID はFindByIDと同じ。トランザクションはStore全体で直列化される。
func (r *eventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	return r.FindByID(ctx, id)
}

func (r *eventRepo) ListByOwner(ctx context.Context, userID string) ([]*model.Event, error) {
	s, done := r.b.enter()
	defer done()
	var events []*model.Event
	for _, o := range s.owners {
		if o.UserID != userID {
			continue
		}
		if e, ok := s.events[o.EventID]; ok {
			events = append(events, &e)
		}
	}
	slices.SortFunc(events, func(a, b *model.Event) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return events, nil
}

func (r *eventRepo) Create(ctx context.Context, event *model.Event) error {
	s, done := r.b.enter()
	defer done()
	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("failed to create event: %w", repository.ErrDuplicate)
	}
	s.events[event.ID] = *event
	return nil
}

func (r *eventRepo) Update(ctx context.Context, event *model.Event) error {
	s, done := r.b.enter()
	defer done()
	e, ok := s.events[event.ID]
	if !ok {
		return nil
	}
	e.Title = event.Title
	e.EventURL = event.EventURL
	e.LinkTitle = event.LinkTitle
	e.FaviconData = event.FaviconData
	e.FaviconMime = event.FaviconMime
	e.UpdatedAt = event.UpdatedAt
	s.events[event.ID] = e
	return nil
}

// AddAttendance は参加者数に差分を加算する。範囲外の場合はCHECK制約相当のエラーを返す。
func (r *eventRepo) AddAttendance(ctx context.Context, id string, delta int) (int, error) {
	s, done := r.b.enter()
	defer done()
	e, ok := s.events[id]
	if !ok {
		return 0, fmt.Errorf("failed to update attendance: event not found: %s", id)
	}
	next := e.Attendance + delta
	if next < 0 || next > model.MaxAttendance {
		return 0, fmt.Errorf("failed to update attendance: check constraint violated: %d", next)
	}
	e.Attendance = next
	e.UpdatedAt = time.Now()
	s.events[id] = e
	return next, nil
}

// Delete はイベントを削除し、関連行をCASCADE削除する。
func (r *eventRepo) Delete(ctx context.Context, id string) error {
	s, done := r.b.enter()
	defer done()
	delete(s.events, id)
	for k, v := range s.owners {
		if v.EventID == id {
			delete(s.owners, k)
		}
	}
	for k, v := range s.timers {
		if v.EventID == id {
			delete(s.timers, k)
		}
	}
	for k, v := range s.speakers {
		if v.EventID == id {
			delete(s.speakers, k)
		}
	}
	return nil
}

type ownerRepo struct{ b *binding }

func (r *ownerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	s, done := r.b.enter()
	defer done()
	o, ok := s.owners[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *ownerRepo) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Owner, error) {
	s, done := r.b.enter()
	defer done()
	for _, o := range s.owners {
		if o.EventID == eventID && o.UserID == userID {
			return &o, nil
		}
	}
	return nil, nil
}

func (r *ownerRepo) ListByEvent(ctx context.Context, eventID string) ([]model.OwnerWithUser, error) {
	s, done := r.b.enter()
	defer done()
	var owners []model.OwnerWithUser
	for _, o := range s.owners {
		if o.EventID != eventID {
			continue
		}
		u, ok := s.users[o.UserID]
		if !ok {
			continue
		}
		owners = append(owners, model.OwnerWithUser{Owner: o, Email: u.Email, Name: u.Name, AvatarURL: u.AvatarURL})
	}
	slices.SortFunc(owners, func(a, b model.OwnerWithUser) int {
		if (a.Role == model.RoleAdmin) != (b.Role == model.RoleAdmin) {
			if a.Role == model.RoleAdmin {
				return -1
			}
			return 1
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return owners, nil
}

func (r *ownerRepo) CountAdmins(ctx context.Context, eventID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	return countAdmins(s, eventID), nil
}

func countAdmins(s *state, eventID string) int {
	n := 0
	for _, o := range s.owners {
		if o.EventID == eventID && o.Role == model.RoleAdmin {
			n++
		}
	}
	return n
}

func (r *ownerRepo) ListSoleAdminEventIDs(ctx context.Context, userID string) ([]string, error) {
	s, done := r.b.enter()
	defer done()
	var ids []string
	for _, o := range s.owners {
		if o.UserID == userID && o.Role == model.RoleAdmin && countAdmins(s, o.EventID) == 1 {
			ids = append(ids, o.EventID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *ownerRepo) ListEventIDsByUser(ctx context.Context, userID string) ([]string, error) {
	s, done := r.b.enter()
	defer done()
	var ids []string
	for _, o := range s.owners {
		if o.UserID == userID {
			ids = append(ids, o.EventID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *ownerRepo) Create(ctx context.Context, owner *model.Owner) error {
	s, done := r.b.enter()
	defer done()
	for _, o := range s.owners {
		if o.EventID == owner.EventID && o.UserID == owner.UserID {
			return fmt.Errorf("failed to create owner: %w (uq_owners_event_user)", repository.ErrDuplicate)
		}
	}
	s.owners[owner.ID] = *owner
	return nil
}

func (r *ownerRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	s, done := r.b.enter()
	defer done()
	o, ok := s.owners[id]
	if !ok {
		return nil
	}
	o.Role = role
	s.owners[id] = o
	return nil
}

func (r *ownerRepo) DeleteByEventAndUser(ctx context.Context, eventID, userID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	n := 0
	for k, o := range s.owners {
		if o.EventID == eventID && o.UserID == userID {
			delete(s.owners, k)
			n++
		}
	}
	return n, nil
}

func (r *ownerRepo) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	n := 0
	for k, o := range s.owners {
		if o.EventID == eventID {
			delete(s.owners, k)
			n++
		}
	}
	return n, nil
}

func (r *ownerRepo) DeleteByUserID(ctx context.Context, userID string) error {
	s, done := r.b.enter()
	defer done()
	for k, o := range s.owners {
		if o.UserID == userID {
			delete(s.owners, k)
		}
	}
	return nil
}

var (
	_ repository.EventRepository = (*eventRepo)(nil)
	_ repository.OwnerRepository = (*ownerRepo)(nil)
)
