package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/eventkeeper/internal/config"
	"github.com/hitoshi/eventkeeper/internal/model"
)

const (
	wiringUserID    = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	wiringSessionID = "wiring-session"
	wiringCSRF      = "wiring-csrf-token"
)

func newMemoryConfig() *config.Config {
	return &config.Config{
		DataStore:              config.DataStoreMemory,
		SessionMaxAge:          86400,
		SessionCleanupInterval: time.Hour,
		RateLimitGeneral:       120,
		RateLimitMutation:      60,
		ViewCacheTTL:           30 * time.Second,
		LinkPreviewEnabled:     false,
		LinkPreviewTimeout:     time.Second,
		BaseURL:                "http://localhost:8080",
		CORSAllowedOrigin:      "http://localhost:3000",
	}
}

// newMemoryServer はインメモリストアで組み立てたAPIサーバーと、ログイン済みユーザーを用意する。
func newMemoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := newMemoryConfig()
	c, err := openComponents(cfg)
	if err != nil {
		t.Fatalf("openComponents: %v", err)
	}
	t.Cleanup(c.Close)

	ctx := context.Background()
	now := time.Now()
	r := c.store.Repos()
	if err := r.Users.CreateWithIdentity(ctx,
		&model.User{ID: wiringUserID, Email: "alice@example.com", Name: "Alice", CreatedAt: now, UpdatedAt: now},
		&model.Identity{ID: "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb", UserID: wiringUserID, Provider: "google", ProviderUserID: "g-1", CreatedAt: now},
	); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := r.Sessions.Create(ctx, &model.Session{ID: wiringSessionID, UserID: wiringUserID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	h, rl := newAPIHandler(cfg, c)
	t.Cleanup(rl.Stop)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", wiringCSRF)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: wiringSessionID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: wiringCSRF})

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIHandler_HealthAndMetrics(t *testing.T) {
	srv := newMemoryServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"go_goroutines", "eventkeeper_tx_retries_total", "eventkeeper_http_requests_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestAPIHandler_EventLifecycleOverMemoryStore(t *testing.T) {
	srv := newMemoryServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/api/events", `{"title":"Go Meetup"}`)
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("create status = %d, want 201: %s", resp.StatusCode, b)
	}
	var created struct {
		ID         string `json:"id"`
		Attendance int    `json:"attendance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/events/"+created.ID+"/timers", `{"duration_minutes":15}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add timer status = %d, want 201", resp.StatusCode)
	}
	resp = doRequest(t, srv, http.MethodPost, "/api/events/"+created.ID+"/attendance/increment", `{"delta":3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("increment status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/events/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	var detail struct {
		Attendance int `json:"attendance"`
		Owners     []struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		} `json:"owners"`
		Timers []struct {
			Sequence int `json:"sequence"`
		} `json:"timers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Attendance != 3 {
		t.Errorf("attendance = %d, want 3", detail.Attendance)
	}
	if len(detail.Owners) != 1 || detail.Owners[0].UserID != wiringUserID || detail.Owners[0].Role != "admin" {
		t.Errorf("owners = %+v", detail.Owners)
	}
	if len(detail.Timers) != 1 || detail.Timers[0].Sequence != 1 {
		t.Errorf("timers = %+v", detail.Timers)
	}

	resp = doRequest(t, srv, http.MethodDelete, "/api/events/"+created.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp = doRequest(t, srv, http.MethodGet, "/api/events/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}
