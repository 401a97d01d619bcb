// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ストア、ミドルウェアから利用する。
type MetricsCollector interface {
	// RecordOperation はドメイン操作の結果を記録する。outcomeは"ok"またはエラー種別。
	RecordOperation(op, outcome string)
	// RecordTxRetry はトランザクションの再実行を記録する。
	RecordTxRetry()
	// RecordInvalidation は発行された無効化キーを種別（event / user）ごとに記録する。
	RecordInvalidation(kind string)
	// RecordCacheLookup はビューキャッシュのヒット / ミスを記録する。
	RecordCacheLookup(hit bool)
	// RecordLinkPreview はリンクプレビュー取得の成否を記録する。
	RecordLinkPreview(success bool)
	// RecordHTTPRequest はHTTPリクエストのステータスとレイテンシを記録する。
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	operations    *prometheus.CounterVec
	txRetries     prometheus.Counter
	invalidations *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	linkPreviews  *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	httpLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventkeeper_operations_total",
			Help: "ドメイン操作の実行数（操作名・結果別）",
		}, []string{"operation", "outcome"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventkeeper_tx_retries_total",
			Help: "直列化失敗によるトランザクション再実行の合計数",
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventkeeper_invalidations_total",
			Help: "発行されたキャッシュ無効化キーの数",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventkeeper_view_cache_lookups_total",
			Help: "ビューキャッシュの参照数（hit / miss）",
		}, []string{"result"}),
		linkPreviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventkeeper_link_previews_total",
			Help: "リンクプレビュー取得の実行数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventkeeper_http_requests_total",
			Help: "HTTPメソッド・ステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventkeeper_http_request_duration_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.operations,
		c.txRetries,
		c.invalidations,
		c.cacheLookups,
		c.linkPreviews,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordOperation はドメイン操作の結果を記録する。
func (c *Collector) RecordOperation(op, outcome string) {
	c.operations.WithLabelValues(op, outcome).Inc()
}

// RecordTxRetry はトランザクション再実行を記録する。
func (c *Collector) RecordTxRetry() {
	c.txRetries.Inc()
}

// RecordInvalidation は無効化キーの発行を記録する。
func (c *Collector) RecordInvalidation(kind string) {
	c.invalidations.WithLabelValues(kind).Inc()
}

// RecordCacheLookup はキャッシュ参照結果を記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	c.cacheLookups.WithLabelValues(hitLabel(hit, "hit", "miss")).Inc()
}

// RecordLinkPreview はリンクプレビュー取得結果を記録する。
func (c *Collector) RecordLinkPreview(success bool) {
	c.linkPreviews.WithLabelValues(hitLabel(success, "success", "failure")).Inc()
}

// RecordHTTPRequest はHTTPリクエストを記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// OutcomeOf は操作結果のラベルを返す。成功時は"ok"、失敗時はエラー分類。
func OutcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(model.KindOf(err))
}

func hitLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス不要の構成で使用する。
type Nop struct{}

func (Nop) RecordOperation(string, string) {}
func (Nop) RecordTxRetry() {}
func (Nop) RecordInvalidation(string) {}
func (Nop) RecordCacheLookup(bool) {}
func (Nop) RecordLinkPreview(bool) {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
