// Package metrics exposes the recommendation pipeline's Prometheus metrics.
// A nil *Pipeline is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets are the upstream latency buckets (in seconds).
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Registry owns a Prometheus registry and the pipeline collectors on it.
type Registry struct {
	reg      *prometheus.Registry
	Pipeline *Pipeline
}

// New creates a Registry with Go runtime, process and pipeline collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg, Pipeline: NewPipeline(reg)}
}

// Handler returns an http.Handler that serves /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Pipeline holds the chat pipeline collectors.
type Pipeline struct {
	ChatRequests     *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	EmbedRetries     prometheus.Counter
	CatalogSize      prometheus.Gauge
	BreakerOpen      prometheus.Gauge
}

// NewPipeline creates the pipeline collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "festa_chat_requests_total",
			Help: "Chat requests by terminal outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "festa_upstream_duration_seconds",
			Help:    "Latency of embedding, catalog and generation calls.",
			Buckets: DefaultBuckets,
		}, []string{"op", "status"}),
		EmbedRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "festa_embed_retries_total",
			Help: "Embedding attempts retried after rate limiting.",
		}),
		CatalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "festa_catalog_events",
			Help: "Embedded events seen by the last catalog read.",
		}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "festa_generation_breaker_open",
			Help: "1 while the generation circuit breaker is not closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.ChatRequests, p.UpstreamDuration, p.EmbedRetries, p.CatalogSize, p.BreakerOpen)
	}
	return p
}

// Outcome counts one finished chat request.
func (p *Pipeline) Outcome(outcome string) {
	if p == nil {
		return
	}
	p.ChatRequests.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the latency of op since start.
func (p *Pipeline) ObserveUpstream(op string, start time.Time, err error) {
	if p == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.UpstreamDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// EmbedRetry counts one embedding retry.
func (p *Pipeline) EmbedRetry() {
	if p == nil {
		return
	}
	p.EmbedRetries.Inc()
}

// Catalog records the size of the last catalog read.
func (p *Pipeline) Catalog(n int) {
	if p == nil {
		return
	}
	p.CatalogSize.Set(float64(n))
}

// BreakerState records a generation breaker transition.
func (p *Pipeline) BreakerState(state string) {
	if p == nil {
		return
	}
	if state == "closed" {
		p.BreakerOpen.Set(0)
		return
	}
	p.BreakerOpen.Set(1)
}
