package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testRateLimiterConfig(generalBurst, mutationBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		MutationRate:    1,
		MutationBurst:   mutationBurst,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/events", nil)
	if userID != "" {
		req = withUser(req, userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGeneralMiddleware_BurstThen429(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 10))
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if w := serve(h, http.MethodGet, "user-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := serve(h, http.MethodGet, "user-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
}

func TestGeneralMiddleware_IsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 10))
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	serve(h, http.MethodGet, "user-a")
	if w := serve(h, http.MethodGet, "user-a"); w.Code != http.StatusTooManyRequests {
		t.Errorf("user-a status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := serve(h, http.MethodGet, "user-b"); w.Code != http.StatusOK {
		t.Errorf("user-b status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestGeneralMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 5))
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	if w := serve(h, http.MethodGet, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMutationMiddleware_SkipsSafeMethods(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(100, 1))
	defer rl.Stop()
	h := rl.MutationMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := serve(h, http.MethodGet, "user-1"); w.Code != http.StatusOK {
			t.Fatalf("GET %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if w := serve(h, http.MethodPost, "user-1"); w.Code != http.StatusOK {
		t.Fatalf("first POST status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serve(h, http.MethodPatch, "user-1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("second mutation status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := rl.MutationLimiterCount(); got != 1 {
		t.Errorf("MutationLimiterCount = %d, want 1", got)
	}
}

func TestMutationMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 5))
	defer rl.Stop()
	general := rl.GeneralMiddleware()(okHandler())
	mutation := rl.MutationMiddleware()(okHandler())

	serve(general, http.MethodGet, "user-1")
	if w := serve(general, http.MethodGet, "user-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("general status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := serve(mutation, http.MethodPost, "user-1"); w.Code != http.StatusOK {
		t.Errorf("mutation status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	cfg := testRateLimiterConfig(5, 5)
	cfg.CleanupInterval = time.Hour
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.general.get("idle", time.Now().Add(-3*time.Hour))
	rl.general.get("active", time.Now())
	rl.mutation.get("idle", time.Now().Add(-3*time.Hour))

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", got)
	}
	if got := rl.MutationLimiterCount(); got != 0 {
		t.Errorf("MutationLimiterCount = %d, want 0", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 60)

	if cfg.GeneralRate != 2 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.MutationRate != 1 {
		t.Errorf("MutationRate = %v, want 1", cfg.MutationRate)
	}
	if cfg.MutationBurst != 60 {
		t.Errorf("MutationBurst = %d, want 60", cfg.MutationBurst)
	}
	if DefaultRateLimiterConfig() != cfg {
		t.Error("DefaultRateLimiterConfig should equal NewRateLimiterConfig(120, 60)")
	}
}
