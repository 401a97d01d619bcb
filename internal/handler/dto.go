package handler

import (
	"encoding/base64"
	"time"

	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/timer"
)

type eventResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	EventURL   *string   `json:"event_url"`
	Attendance int       `json:"attendance"`
	LinkTitle  *string   `json:"link_title"`
	Favicon    *string   `json:"favicon"` // data URL
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:         e.ID,
		Title:      e.Title,
		EventURL:   e.EventURL,
		Attendance: e.Attendance,
		LinkTitle:  e.LinkTitle,
		Favicon:    faviconDataURL(e.FaviconData, e.FaviconMime),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// faviconDataURL はfaviconのバイト列をdata URLに変換する。データがない場合はnilを返す。
func faviconDataURL(data []byte, mime string) *string {
	if len(data) == 0 || mime == "" {
		return nil
	}
	s := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	return &s
}

type ownerResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toOwnerResponse(o *model.Owner) ownerResponse {
	return ownerResponse{
		ID:        o.ID,
		EventID:   o.EventID,
		UserID:    o.UserID,
		Role:      string(o.Role),
		CreatedAt: o.CreatedAt,
	}
}

func toOwnerResponses(owners []model.OwnerWithUser) []ownerResponse {
	res := make([]ownerResponse, len(owners))
	for i, o := range owners {
		res[i] = toOwnerResponse(&o.Owner)
		res[i].Email = o.Email
		res[i].Name = o.Name
		res[i].AvatarURL = o.AvatarURL
	}
	return res
}

type timerResponse struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	DurationMinutes int       `json:"duration_minutes"`
	Sequence        int       `json:"sequence"`
	CreatedAt       time.Time `json:"created_at"`
}

func toTimerResponse(t *model.Timer) timerResponse {
	return timerResponse{
		ID:              t.ID,
		EventID:         t.EventID,
		DurationMinutes: t.DurationMinutes,
		Sequence:        t.Sequence,
		CreatedAt:       t.CreatedAt,
	}
}

func toTimerResponses(timers []model.Timer) []timerResponse {
	res := make([]timerResponse, len(timers))
	for i := range timers {
		res[i] = toTimerResponse(&timers[i])
	}
	return res
}

type slotResponse struct {
	TimerID         string    `json:"timer_id"`
	Sequence        int       `json:"sequence"`
	DurationMinutes int       `json:"duration_minutes"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	OffsetMinutes   int       `json:"offset_minutes"`
}

type scheduleResponse struct {
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	TotalMinutes int            `json:"total_minutes"`
	Slots        []slotResponse `json:"slots"`
}

func toScheduleResponse(start time.Time, slots []timer.Slot) scheduleResponse {
	total := timer.Total(slots)
	res := scheduleResponse{
		Start:        start,
		End:          start.Add(total),
		TotalMinutes: int(total / time.Minute),
		Slots:        make([]slotResponse, len(slots)),
	}
	for i, s := range slots {
		res.Slots[i] = slotResponse{
			TimerID:         s.TimerID,
			Sequence:        s.Sequence,
			DurationMinutes: s.DurationMinutes,
			StartsAt:        s.StartsAt,
			EndsAt:          s.EndsAt,
			OffsetMinutes:   int(s.Offset / time.Minute),
		}
	}
	return res
}

type speakerResponse struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	ArticleID    *string   `json:"article_id"`
	ArticleTitle *string   `json:"article_title,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toSpeakerResponse(s *model.Speaker) speakerResponse {
	return speakerResponse{
		ID:        s.ID,
		EventID:   s.EventID,
		UserID:    s.UserID,
		Role:      s.Role,
		ArticleID: s.ArticleID,
		CreatedAt: s.CreatedAt,
	}
}

func toSpeakerResponses(speakers []model.SpeakerWithUser) []speakerResponse {
	res := make([]speakerResponse, len(speakers))
	for i, s := range speakers {
		res[i] = toSpeakerResponse(&s.Speaker)
		res[i].ArticleTitle = s.ArticleTitle
		res[i].Email = s.Email
		res[i].Name = s.Name
		res[i].AvatarURL = s.AvatarURL
	}
	return res
}

type eventDetailResponse struct {
	eventResponse
	Owners   []ownerResponse   `json:"owners"`
	Speakers []speakerResponse `json:"speakers"`
	Timers   []timerResponse   `json:"timers"`
}

func toEventDetailResponse(d *model.EventDetail) eventDetailResponse {
	return eventDetailResponse{
		eventResponse: toEventResponse(&d.Event),
		Owners:        toOwnerResponses(d.Owners),
		Speakers:      toSpeakerResponses(d.Speakers),
		Timers:        toTimerResponses(d.Timers),
	}
}

type articleResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	URL         *string   `json:"url"`
	CreatedBy   *string   `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toArticleResponse(a *model.Article) articleResponse {
	return articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		URL:         a.URL,
		CreatedBy:   a.CreatedBy,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}
