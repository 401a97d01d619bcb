package middleware

import (
	"net/http"
	"time"

	"github.com/hitoshi/eventkeeper/internal/metrics"
)

// NewMetricsMiddleware はHTTPリクエストのステータスとレイテンシを記録するミドルウェアを返す。
func NewMetricsMiddleware(m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			m.RecordHTTPRequest(r.Method, rec.statusCode, time.Since(start))
		})
	}
}
