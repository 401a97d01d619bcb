package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/eventkeeper/internal/model"
)

// findMetric は名前とラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordOperation_IncrementsCounter は操作カウンタが操作名・結果別に増加することを検証する。
func TestRecordOperation_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOperation("timer.add", "ok")
	c.RecordOperation("timer.add", "ok")
	c.RecordOperation("timer.add", "forbidden")

	ok := findMetric(t, reg, "eventkeeper_operations_total", map[string]string{"operation": "timer.add", "outcome": "ok"})
	if v := ok.GetCounter().GetValue(); v != 2 {
		t.Errorf("ok = %v, want 2", v)
	}
	forbidden := findMetric(t, reg, "eventkeeper_operations_total", map[string]string{"operation": "timer.add", "outcome": "forbidden"})
	if v := forbidden.GetCounter().GetValue(); v != 1 {
		t.Errorf("forbidden = %v, want 1", v)
	}
}

// TestRecordTxRetry_IncrementsCounter は再実行カウンタが増加することを検証する。
func TestRecordTxRetry_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTxRetry()

	m := findMetric(t, reg, "eventkeeper_tx_retries_total", nil)
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("tx_retries_total = %v, want 1", v)
	}
}

// TestRecordCacheLookup_HitAndMiss はキャッシュ参照がhit/missで分かれることを検証する。
func TestRecordCacheLookup_HitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)
	c.RecordCacheLookup(false)

	miss := findMetric(t, reg, "eventkeeper_view_cache_lookups_total", map[string]string{"result": "miss"})
	if v := miss.GetCounter().GetValue(); v != 2 {
		t.Errorf("miss = %v, want 2", v)
	}
}

// TestRecordHTTPRequest_RecordsStatusAndLatency はステータス別カウンタとレイテンシが記録されることを検証する。
func TestRecordHTTPRequest_RecordsStatusAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("POST", 422, 15*time.Millisecond)

	m := findMetric(t, reg, "eventkeeper_http_requests_total", map[string]string{"method": "POST", "status_code": "422"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("http_requests_total = %v, want 1", v)
	}
	h := findMetric(t, reg, "eventkeeper_http_request_duration_seconds", nil)
	if n := h.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
}

// TestNop_DoesNotPanic はNopがすべての記録を無視することを検証する。
func TestNop_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordOperation("x", "ok")
	c.RecordTxRetry()
	c.RecordInvalidation("event")
	c.RecordCacheLookup(true)
	c.RecordLinkPreview(false)
	c.RecordHTTPRequest("GET", 200, time.Millisecond)
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"forbidden", model.NewForbiddenError("e1"), "forbidden"},
		{"wrapped validation", fmt.Errorf("op: %w", model.NewInvalidDurationError(0, 300)), "validation"},
		{"plain", errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeOf(tt.err); got != tt.want {
				t.Errorf("OutcomeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
