// Package metrics exposes Prometheus collectors for the analysis service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nemonet1337/zaiReconcile/pkg/reconcile"
)

const namespace = "reconcile"

// Collector records analysis measurements into a dedicated registry
// 分析処理の計測値をPrometheusレジストリに記録
type Collector struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	enrichedItems     prometheus.Counter
	missingReferences prometheus.Counter
}

// reconcile.Recorderを実装することを明示
var _ reconcile.Recorder = (*Collector)(nil)

// NewCollector creates and registers the analysis collectors
// 新しいコレクターを作成し登録
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Number of analysis requests by operation and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of analysis requests including store fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		enrichedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enriched_items_total",
			Help:      "Number of count line items enriched.",
		}),
		missingReferences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_item_references_total",
			Help:      "Number of count line items referencing an unknown item.",
		}),
	}

	c.registry.MustRegister(
		c.requests,
		c.duration,
		c.enrichedItems,
		c.missingReferences,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveAnalysis records one analysis request
func (c *Collector) ObserveAnalysis(operation string, duration time.Duration, err error) {
	c.requests.WithLabelValues(operation, status(err)).Inc()
	c.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddEnrichedItems counts enriched line items
func (c *Collector) AddEnrichedItems(n int) {
	if n > 0 {
		c.enrichedItems.Add(float64(n))
	}
}

// AddMissingReferences counts dangling item references
func (c *Collector) AddMissingReferences(n int) {
	if n > 0 {
		c.missingReferences.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format
// メトリクスエンドポイントのハンドラーを返す
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case reconcile.IsValidationError(err):
		return "invalid"
	case reconcile.IsStorageError(err):
		return "upstream_error"
	default:
		return "error"
	}
}
