package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/repository"
)

type timerRepo struct{ b *binding }

func (r *timerRepo) FindByID(ctx context.Context, id string) (*model.Timer, error) {
	s, done := r.b.enter()
	defer done()
	t, ok := s.timers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// sortedTimers はイベントのタイマーを(sequence, created_at, id)順で返す。
func sortedTimers(s *state, eventID string) []model.Timer {
	var timers []model.Timer
	for _, t := range s.timers {
		if t.EventID == eventID {
			timers = append(timers, t)
		}
	}
	slices.SortFunc(timers, func(a, b model.Timer) int {
		if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return timers
}

func (r *timerRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Timer, error) {
	s, done := r.b.enter()
	defer done()
	return sortedTimers(s, eventID), nil
}

func (r *timerRepo) MaxSequence(ctx context.Context, eventID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	max := 0
	for _, t := range s.timers {
		if t.EventID == eventID && t.Sequence > max {
			max = t.Sequence
		}
	}
	return max, nil
}

func (r *timerRepo) Create(ctx context.Context, timer *model.Timer) error {
	s, done := r.b.enter()
	defer done()
	if _, ok := s.timers[timer.ID]; ok {
		return fmt.Errorf("failed to create timer: %w", repository.ErrDuplicate)
	}
	s.timers[timer.ID] = *timer
	return nil
}

func (r *timerRepo) UpdateDuration(ctx context.Context, id string, minutes int) error {
	s, done := r.b.enter()
	defer done()
	t, ok := s.timers[id]
	if !ok {
		return nil
	}
	t.DurationMinutes = minutes
	s.timers[id] = t
	return nil
}

func (r *timerRepo) Delete(ctx context.Context, id string) error {
	s, done := r.b.enter()
	defer done()
	delete(s.timers, id)
	return nil
}

func (r *timerRepo) Renumber(ctx context.Context, eventID string) error {
	s, done := r.b.enter()
	defer done()
	for i, t := range sortedTimers(s, eventID) {
		t.Sequence = i + 1
		s.timers[t.ID] = t
	}
	return nil
}

func (r *timerRepo) AssignSequences(ctx context.Context, eventID string, orderedIDs []string) error {
	s, done := r.b.enter()
	defer done()
	for i, id := range orderedIDs {
		t, ok := s.timers[id]
		if !ok || t.EventID != eventID {
			continue
		}
		t.Sequence = i + 1
		s.timers[id] = t
	}
	return nil
}

func (r *timerRepo) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	n := 0
	for k, t := range s.timers {
		if t.EventID == eventID {
			delete(s.timers, k)
			n++
		}
	}
	return n, nil
}

type speakerRepo struct{ b *binding }

func (r *speakerRepo) FindByEventAndUser(ctx context.Context, eventID, userID string) (*model.Speaker, error) {
	s, done := r.b.enter()
	defer done()
	for _, sp := range s.speakers {
		if sp.EventID == eventID && sp.UserID == userID {
			return &sp, nil
		}
	}
	return nil, nil
}

func (r *speakerRepo) ListByEvent(ctx context.Context, eventID string) ([]model.SpeakerWithUser, error) {
	s, done := r.b.enter()
	defer done()
	var speakers []model.SpeakerWithUser
	for _, sp := range s.speakers {
		if sp.EventID != eventID {
			continue
		}
		u, ok := s.users[sp.UserID]
		if !ok {
			continue
		}
		sw := model.SpeakerWithUser{Speaker: sp, Email: u.Email, Name: u.Name, AvatarURL: u.AvatarURL}
		if sp.ArticleID != nil {
			if a, ok := s.articles[*sp.ArticleID]; ok {
				title := a.Title
				sw.ArticleTitle = &title
			}
		}
		speakers = append(speakers, sw)
	}
	slices.SortFunc(speakers, func(a, b model.SpeakerWithUser) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return speakers, nil
}

func (r *speakerRepo) ListEventIDsByArticle(ctx context.Context, articleID string) ([]string, error) {
	s, done := r.b.enter()
	defer done()
	var ids []string
	for _, sp := range s.speakers {
		if sp.ArticleID != nil && *sp.ArticleID == articleID && !slices.Contains(ids, sp.EventID) {
			ids = append(ids, sp.EventID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *speakerRepo) Create(ctx context.Context, speaker *model.Speaker) error {
	s, done := r.b.enter()
	defer done()
	for _, sp := range s.speakers {
		if sp.EventID == speaker.EventID && sp.UserID == speaker.UserID {
			return fmt.Errorf("failed to create speaker: %w (uq_speakers_event_user)", repository.ErrDuplicate)
		}
	}
	s.speakers[speaker.ID] = *speaker
	return nil
}

func (r *speakerRepo) Update(ctx context.Context, speaker *model.Speaker) error {
	s, done := r.b.enter()
	defer done()
	sp, ok := s.speakers[speaker.ID]
	if !ok {
		return nil
	}
	sp.Role = speaker.Role
	sp.ArticleID = speaker.ArticleID
	s.speakers[speaker.ID] = sp
	return nil
}

func (r *speakerRepo) DeleteByEventAndUser(ctx context.Context, eventID, userID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	n := 0
	for k, sp := range s.speakers {
		if sp.EventID == eventID && sp.UserID == userID {
			delete(s.speakers, k)
			n++
		}
	}
	return n, nil
}

func (r *speakerRepo) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	s, done := r.b.enter()
	defer done()
	n := 0
	for k, sp := range s.speakers {
		if sp.EventID == eventID {
			delete(s.speakers, k)
			n++
		}
	}
	return n, nil
}

func (r *speakerRepo) DeleteByUserID(ctx context.Context, userID string) error {
	s, done := r.b.enter()
	defer done()
	for k, sp := range s.speakers {
		if sp.UserID == userID {
			delete(s.speakers, k)
		}
	}
	return nil
}

var (
	_ repository.TimerRepository   = (*timerRepo)(nil)
	_ repository.SpeakerRepository = (*speakerRepo)(nil)
)
