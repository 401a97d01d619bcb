package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	status int
}

type mockHTTPMetrics struct {
	requests []recordedRequest
}

func (m *mockHTTPMetrics) RecordOperation(string, string) {}
func (m *mockHTTPMetrics) RecordTxRetry()                 {}
func (m *mockHTTPMetrics) RecordInvalidation(string)      {}
func (m *mockHTTPMetrics) RecordCacheLookup(bool)         {}
func (m *mockHTTPMetrics) RecordLinkPreview(bool)         {}
func (m *mockHTTPMetrics) RecordHTTPRequest(method string, statusCode int, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{method: method, status: statusCode})
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	m := &mockHTTPMetrics{}
	h := NewMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/events", nil))

	if len(m.requests) != 1 {
		t.Fatalf("recorded %d requests, want 1", len(m.requests))
	}
	if got := m.requests[0]; got.method != http.MethodPost || got.status != http.StatusConflict {
		t.Errorf("recorded = %+v, want POST/409", got)
	}
}

func TestMetricsMiddleware_NestedWrappersSeeSameStatus(t *testing.T) {
	m := &mockHTTPMetrics{}
	inner := NewMetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	outer := NewMetricsMiddleware(m)(inner)

	w := httptest.NewRecorder()
	outer.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/x", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	for _, r := range m.requests {
		if r.status != http.StatusNotFound {
			t.Errorf("recorded status = %d, want %d", r.status, http.StatusNotFound)
		}
	}
}
