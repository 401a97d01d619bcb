package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// newProtectedRouter はSession -> RateLimit -> CSRF の順でミドルウェアを組んだルーターを返す。
func newProtectedRouter(rl *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(validSessionFinder("sess-1", "user-chain")))
		r.Use(rl.GeneralMiddleware())
		r.Use(rl.MutationMiddleware())
		r.Use(NewCSRFMiddleware(CSRFConfig{}))

		r.Get("/api/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)
		r.Post("/api/events", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
	})
	return r
}

func TestMiddlewareChain_AuthenticatedPOSTWithCSRF(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralRate: 10, GeneralBurst: 10, MutationRate: 10, MutationBurst: 10, CleanupInterval: time.Minute})
	defer rl.Stop()
	router := newProtectedRouter(rl)

	// トークン取得
	tokenReq := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	tokenReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	tokenRes := httptest.NewRecorder()
	router.ServeHTTP(tokenRes, tokenReq)
	if tokenRes.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d, want %d", tokenRes.Code, http.StatusOK)
	}
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(tokenRes.Body).Decode(&tok); err != nil {
		t.Fatalf("failed to decode token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tok.Token})
	req.Header.Set(csrfHeaderName, tok.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["user_id"] != "user-chain" {
		t.Errorf("user_id = %q, want user-chain", body["user_id"])
	}
}

func TestMiddlewareChain_RejectionOrder(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralRate: 10, GeneralBurst: 10, MutationRate: 10, MutationBurst: 10, CleanupInterval: time.Minute})
	defer rl.Stop()
	router := newProtectedRouter(rl)

	t.Run("no session is 401 before CSRF", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/events", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("session without CSRF token is 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}
