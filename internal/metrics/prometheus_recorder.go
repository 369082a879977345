package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	cacheResults      *prom.CounterVec
	structureDuration *prom.HistogramVec
	pageDuration      *prom.HistogramVec
	pageResults       *prom.CounterVec
	pagesInFlight     prom.Gauge
	cycleOutcome      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.cacheResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikigen",
			Name:      "cache_results_total",
			Help:      "Cache reads by hit/miss",
		}, []string{"result"})
		pr.structureDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "wikigen",
			Name:      "structure_duration_seconds",
			Help:      "Duration of structure generation calls",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.pageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "wikigen",
			Name:      "page_duration_seconds",
			Help:      "Duration of page generation calls",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.pageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikigen",
			Name:      "page_results_total",
			Help:      "Page generation results by outcome",
		}, []string{"result"})
		pr.pagesInFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: "wikigen",
			Name:      "pages_in_flight",
			Help:      "Number of page generations currently in flight",
		})
		pr.cycleOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikigen",
			Name:      "cycle_outcomes_total",
			Help:      "Generation cycle outcomes by final state",
		}, []string{"outcome"})
		reg.MustRegister(pr.cacheResults, pr.structureDuration, pr.pageDuration,
			pr.pageResults, pr.pagesInFlight, pr.cycleOutcome)
	})
	return pr
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (pr *PrometheusRecorder) IncCacheResult(hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	pr.cacheResults.WithLabelValues(label).Inc()
}

func (pr *PrometheusRecorder) ObserveStructureDuration(d time.Duration, success bool) {
	pr.structureDuration.WithLabelValues(resultLabel(success)).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObservePageDuration(d time.Duration, success bool) {
	pr.pageDuration.WithLabelValues(resultLabel(success)).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncPageResult(result string) {
	pr.pageResults.WithLabelValues(result).Inc()
}

func (pr *PrometheusRecorder) SetPagesInFlight(n int) {
	pr.pagesInFlight.Set(float64(n))
}

func (pr *PrometheusRecorder) IncCycleOutcome(outcome string) {
	pr.cycleOutcome.WithLabelValues(outcome).Inc()
}
