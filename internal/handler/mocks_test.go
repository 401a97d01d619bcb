package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventkeeper/internal/article"
	"github.com/hitoshi/eventkeeper/internal/event"
	"github.com/hitoshi/eventkeeper/internal/middleware"
	"github.com/hitoshi/eventkeeper/internal/model"
	"github.com/hitoshi/eventkeeper/internal/speaker"
	"github.com/hitoshi/eventkeeper/internal/timer"
)

const (
	testUserID    = "11111111-1111-4111-8111-111111111111"
	testEventID   = "22222222-2222-4222-8222-222222222222"
	testTimerID   = "33333333-3333-4333-8333-333333333333"
	testOwnerID   = "44444444-4444-4444-8444-444444444444"
	testArticleID = "55555555-5555-4555-8555-555555555555"
	otherUserID   = "66666666-6666-4666-8666-666666666666"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

type mockEventService struct {
	createEventFn         func(ctx context.Context, userID string, in event.Input) (*model.Event, error)
	updateEventFn         func(ctx context.Context, eventID, actingUserID string, in event.Input) (*model.Event, error)
	deleteEventFn         func(ctx context.Context, eventID, actingUserID string) error
	getEventFn            func(ctx context.Context, eventID, actingUserID string) (*model.EventDetail, error)
	listMyEventsFn        func(ctx context.Context, userID string) ([]*model.Event, error)
	setAttendanceFn       func(ctx context.Context, eventID, actingUserID string, newValue int) (int, error)
	incrementAttendanceFn func(ctx context.Context, eventID, actingUserID string, delta int) (int, error)
}

func (m *mockEventService) CreateEvent(ctx context.Context, userID string, in event.Input) (*model.Event, error) {
	if m.createEventFn != nil {
		return m.createEventFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockEventService) UpdateEvent(ctx context.Context, eventID, actingUserID string, in event.Input) (*model.Event, error) {
	if m.updateEventFn != nil {
		return m.updateEventFn(ctx, eventID, actingUserID, in)
	}
	return nil, nil
}

func (m *mockEventService) DeleteEvent(ctx context.Context, eventID, actingUserID string) error {
	if m.deleteEventFn != nil {
		return m.deleteEventFn(ctx, eventID, actingUserID)
	}
	return nil
}

func (m *mockEventService) GetEvent(ctx context.Context, eventID, actingUserID string) (*model.EventDetail, error) {
	if m.getEventFn != nil {
		return m.getEventFn(ctx, eventID, actingUserID)
	}
	return nil, nil
}

func (m *mockEventService) ListMyEvents(ctx context.Context, userID string) ([]*model.Event, error) {
	if m.listMyEventsFn != nil {
		return m.listMyEventsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockEventService) SetAttendance(ctx context.Context, eventID, actingUserID string, newValue int) (int, error) {
	if m.setAttendanceFn != nil {
		return m.setAttendanceFn(ctx, eventID, actingUserID, newValue)
	}
	return 0, nil
}

func (m *mockEventService) IncrementAttendance(ctx context.Context, eventID, actingUserID string, delta int) (int, error) {
	if m.incrementAttendanceFn != nil {
		return m.incrementAttendanceFn(ctx, eventID, actingUserID, delta)
	}
	return 0, nil
}

type mockOwnerService struct {
	addOwnerFn    func(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error)
	removeOwnerFn func(ctx context.Context, eventID, actingUserID, targetUserID string) error
	changeRoleFn  func(ctx context.Context, ownerID, actingUserID, eventID string, newRole model.Role) (*model.Owner, error)
	listOwnersFn  func(ctx context.Context, eventID, actingUserID string) ([]model.OwnerWithUser, error)
}

func (m *mockOwnerService) AddOwner(ctx context.Context, eventID, actingUserID, targetEmail string, role model.Role) (*model.Owner, error) {
	if m.addOwnerFn != nil {
		return m.addOwnerFn(ctx, eventID, actingUserID, targetEmail, role)
	}
	return nil, nil
}

func (m *mockOwnerService) RemoveOwner(ctx context.Context, eventID, actingUserID, targetUserID string) error {
	if m.removeOwnerFn != nil {
		return m.removeOwnerFn(ctx, eventID, actingUserID, targetUserID)
	}
	return nil
}

func (m *mockOwnerService) ChangeRole(ctx context.Context, ownerID, actingUserID, eventID string, newRole model.Role) (*model.Owner, error) {
	if m.changeRoleFn != nil {
		return m.changeRoleFn(ctx, ownerID, actingUserID, eventID, newRole)
	}
	return nil, nil
}

func (m *mockOwnerService) ListOwners(ctx context.Context, eventID, actingUserID string) ([]model.OwnerWithUser, error) {
	if m.listOwnersFn != nil {
		return m.listOwnersFn(ctx, eventID, actingUserID)
	}
	return nil, nil
}

type mockTimerService struct {
	addSessionFn    func(ctx context.Context, eventID, actingUserID string, durationMinutes int) (*model.Timer, error)
	updateSessionFn func(ctx context.Context, timerID, actingUserID string, newDuration int) (*model.Timer, error)
	deleteSessionFn func(ctx context.Context, timerID, actingUserID string) error
	reorderFn       func(ctx context.Context, eventID, actingUserID string, orderedTimerIDs []string) ([]model.Timer, error)
	listSessionsFn  func(ctx context.Context, eventID, actingUserID string) ([]model.Timer, error)
	scheduleFn      func(ctx context.Context, eventID, actingUserID string, start time.Time) ([]timer.Slot, error)
}

func (m *mockTimerService) AddSession(ctx context.Context, eventID, actingUserID string, durationMinutes int) (*model.Timer, error) {
	if m.addSessionFn != nil {
		return m.addSessionFn(ctx, eventID, actingUserID, durationMinutes)
	}
	return nil, nil
}

func (m *mockTimerService) UpdateSession(ctx context.Context, timerID, actingUserID string, newDuration int) (*model.Timer, error) {
	if m.updateSessionFn != nil {
		return m.updateSessionFn(ctx, timerID, actingUserID, newDuration)
	}
	return nil, nil
}

func (m *mockTimerService) DeleteSession(ctx context.Context, timerID, actingUserID string) error {
	if m.deleteSessionFn != nil {
		return m.deleteSessionFn(ctx, timerID, actingUserID)
	}
	return nil
}

func (m *mockTimerService) Reorder(ctx context.Context, eventID, actingUserID string, orderedTimerIDs []string) ([]model.Timer, error) {
	if m.reorderFn != nil {
		return m.reorderFn(ctx, eventID, actingUserID, orderedTimerIDs)
	}
	return nil, nil
}

func (m *mockTimerService) ListSessions(ctx context.Context, eventID, actingUserID string) ([]model.Timer, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, eventID, actingUserID)
	}
	return nil, nil
}

func (m *mockTimerService) Schedule(ctx context.Context, eventID, actingUserID string, start time.Time) ([]timer.Slot, error) {
	if m.scheduleFn != nil {
		return m.scheduleFn(ctx, eventID, actingUserID, start)
	}
	return nil, nil
}

type mockSpeakerService struct {
	addSpeakerFn    func(ctx context.Context, eventID, actingUserID, email string, in speaker.Input) (*model.Speaker, error)
	updateSpeakerFn func(ctx context.Context, eventID, actingUserID, speakerUserID string, in speaker.Input) (*model.Speaker, error)
	removeSpeakerFn func(ctx context.Context, eventID, actingUserID, speakerUserID string) error
	listSpeakersFn  func(ctx context.Context, eventID, actingUserID string) ([]model.SpeakerWithUser, error)
}

func (m *mockSpeakerService) AddSpeaker(ctx context.Context, eventID, actingUserID, email string, in speaker.Input) (*model.Speaker, error) {
	if m.addSpeakerFn != nil {
		return m.addSpeakerFn(ctx, eventID, actingUserID, email, in)
	}
	return nil, nil
}

func (m *mockSpeakerService) UpdateSpeaker(ctx context.Context, eventID, actingUserID, speakerUserID string, in speaker.Input) (*model.Speaker, error) {
	if m.updateSpeakerFn != nil {
		return m.updateSpeakerFn(ctx, eventID, actingUserID, speakerUserID, in)
	}
	return nil, nil
}

func (m *mockSpeakerService) RemoveSpeaker(ctx context.Context, eventID, actingUserID, speakerUserID string) error {
	if m.removeSpeakerFn != nil {
		return m.removeSpeakerFn(ctx, eventID, actingUserID, speakerUserID)
	}
	return nil
}

func (m *mockSpeakerService) ListSpeakers(ctx context.Context, eventID, actingUserID string) ([]model.SpeakerWithUser, error) {
	if m.listSpeakersFn != nil {
		return m.listSpeakersFn(ctx, eventID, actingUserID)
	}
	return nil, nil
}

type mockArticleService struct {
	createArticleFn func(ctx context.Context, userID string, in article.Input) (*model.Article, error)
	updateArticleFn func(ctx context.Context, articleID, actingUserID string, in article.Input) (*model.Article, error)
	getArticleFn    func(ctx context.Context, articleID string) (*model.Article, error)
}

func (m *mockArticleService) CreateArticle(ctx context.Context, userID string, in article.Input) (*model.Article, error) {
	if m.createArticleFn != nil {
		return m.createArticleFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockArticleService) UpdateArticle(ctx context.Context, articleID, actingUserID string, in article.Input) (*model.Article, error) {
	if m.updateArticleFn != nil {
		return m.updateArticleFn(ctx, articleID, actingUserID, in)
	}
	return nil, nil
}

func (m *mockArticleService) GetArticle(ctx context.Context, articleID string) (*model.Article, error) {
	if m.getArticleFn != nil {
		return m.getArticleFn(ctx, articleID)
	}
	return nil, nil
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- テストヘルパー ---

// newRequest はJSONボディ付きのリクエストを生成する。bodyがnilの場合はボディなし。
func newRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withUserID はリクエストコンテキストにユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withURLParams はchiのURLパラメータを注入する。引数はkey, valueの組。
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディをdstにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

// assertErrorCode はステータスコードとエラーコードを検証する。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["code"] != wantCode {
		t.Errorf("code = %q, want %q", body["code"], wantCode)
	}
}

func sampleEvent() *model.Event {
	url := "https://example.com/meetup"
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	return &model.Event{
		ID:         testEventID,
		Title:      "Go Meetup",
		EventURL:   &url,
		Attendance: 5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
