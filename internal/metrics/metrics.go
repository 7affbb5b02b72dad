// Package metrics はPrometheus形式のメトリクス収集を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はフェッチバッチ・キャッシュ・マージ処理のメトリクスを記録する。
// coordinatorとaggregateの両方のレコーダーインターフェースを満たす。
type Collector struct {
	batchSuccess prometheus.Counter
	batchFailure prometheus.Counter
	httpStatus   *prometheus.CounterVec
	batchLatency prometheus.Histogram
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	staleDropped prometheus.Counter
	itemsMerged  prometheus.Gauge
}

// NewCollector はCollectorを生成してレジストリに登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		batchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdeck_batch_success_total",
			Help: "成功したフェッチバッチの累計数",
		}),
		batchFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdeck_batch_failure_total",
			Help: "失敗したフェッチバッチの累計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchdeck_http_responses_total",
			Help: "ステータスコード別のHTTPレスポンス累計数",
		}, []string{"status"}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchdeck_batch_duration_seconds",
			Help:    "フェッチバッチの所要時間",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdeck_cache_hits_total",
			Help: "キャッシュヒットの累計数",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdeck_cache_misses_total",
			Help: "キャッシュミスの累計数",
		}),
		staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchdeck_stale_responses_dropped_total",
			Help: "エポック追い越しで破棄されたレスポンスの累計数",
		}),
		itemsMerged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchdeck_items_merged",
			Help: "直近のマージ後の結果一覧のアイテム数",
		}),
	}

	reg.MustRegister(
		c.batchSuccess,
		c.batchFailure,
		c.httpStatus,
		c.batchLatency,
		c.cacheHits,
		c.cacheMisses,
		c.staleDropped,
		c.itemsMerged,
	)
	return c
}

// RecordBatchSuccess はバッチ成功を記録する。
func (c *Collector) RecordBatchSuccess() {
	c.batchSuccess.Inc()
}

// RecordBatchFailure はバッチ失敗を記録する。
func (c *Collector) RecordBatchFailure() {
	c.batchFailure.Inc()
}

// RecordHTTPStatus はHTTPレスポンスのステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBatchLatency はバッチの所要時間を記録する。
func (c *Collector) RecordBatchLatency(duration time.Duration) {
	c.batchLatency.Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

// RecordStaleDropped は陳腐化レスポンスの破棄を記録する。
func (c *Collector) RecordStaleDropped() {
	c.staleDropped.Inc()
}

// RecordItemsMerged はマージ後の結果一覧のアイテム数を記録する。
func (c *Collector) RecordItemsMerged(count int) {
	c.itemsMerged.Set(float64(count))
}

// Handler はメトリクス公開用のHTTPハンドラを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
