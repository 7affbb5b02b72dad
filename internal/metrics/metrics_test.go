package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hitoshi/watchdeck/internal/aggregate"
	"github.com/hitoshi/watchdeck/internal/coordinator"
)

// Collectorは両方のレコーダーインターフェースを満たすこと
var (
	_ coordinator.MetricsRecorder = (*Collector)(nil)
	_ aggregate.MetricsRecorder   = (*Collector)(nil)
)

func TestCollector_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBatchSuccess()
	c.RecordBatchSuccess()
	c.RecordBatchFailure()
	c.RecordCacheHit()
	c.RecordCacheMiss()
	c.RecordStaleDropped()
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)
	c.RecordBatchLatency(150 * time.Millisecond)
	c.RecordItemsMerged(42)

	tests := []struct {
		name    string
		counter prometheus.Collector
		want    float64
	}{
		{name: "バッチ成功", counter: c.batchSuccess, want: 2},
		{name: "バッチ失敗", counter: c.batchFailure, want: 1},
		{name: "キャッシュヒット", counter: c.cacheHits, want: 1},
		{name: "キャッシュミス", counter: c.cacheMisses, want: 1},
		{name: "破棄レスポンス", counter: c.staleDropped, want: 1},
		{name: "マージ後アイテム数", counter: c.itemsMerged, want: 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.counter); got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("status=200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("429")); got != 1 {
		t.Errorf("status=429 = %v, want 1", got)
	}
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordBatchSuccess()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "watchdeck_batch_success_total" {
			found = true
		}
	}
	if !found {
		t.Error("watchdeck_batch_success_totalが公開されていない")
	}

	if Handler(reg) == nil {
		t.Error("Handlerがnilを返した")
	}
}
