// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 購読受付サービスとハンドラーから利用する。
type MetricsCollector interface {
	// RecordSubscription は購読リクエストの最終結果（success、partial、またはエラーコード）を記録する。
	RecordSubscription(result string)
	// RecordForward はメーリングリストへの転送結果を記録する。
	RecordForward(status string, duration time.Duration)
	RecordRateLimited()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	subscriptions  *prometheus.CounterVec
	forwards       *prometheus.CounterVec
	forwardLatency prometheus.Histogram
	rateLimited    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadbox_subscriptions_total",
			Help: "結果別の購読リクエスト数",
		}, []string{"result"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadbox_forward_total",
			Help: "転送結果別のメーリングリスト転送数",
		}, []string{"status"}),
		forwardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadbox_forward_latency_seconds",
			Help:    "メーリングリスト転送のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadbox_rate_limited_total",
			Help: "レート制限で拒否したリクエスト数",
		}),
	}

	reg.MustRegister(
		c.subscriptions,
		c.forwards,
		c.forwardLatency,
		c.rateLimited,
	)

	return c
}

// RecordSubscription は購読リクエストの結果を記録する。
func (c *Collector) RecordSubscription(result string) {
	c.subscriptions.WithLabelValues(result).Inc()
}

// RecordForward は転送結果とレイテンシを記録する。
func (c *Collector) RecordForward(status string, duration time.Duration) {
	c.forwards.WithLabelValues(status).Inc()
	c.forwardLatency.Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// Nop は何も記録しないMetricsCollector。CLIやテストで使う。
type Nop struct{}

func (Nop) RecordSubscription(string)           {}
func (Nop) RecordForward(string, time.Duration) {}
func (Nop) RecordRateLimited()                  {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
