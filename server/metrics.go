package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"songcatalog/core/catalog"
	"songcatalog/model"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标，同时作为目录变更的观察者
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	mutations *prometheus.CounterVec
	feedConns prometheus.GaugeFunc
}

var _ catalog.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors on a private registry. feedClients
// may be nil when no feed hub is running.
func NewMetrics(feedClients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "songcatalog",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "songcatalog",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "songcatalog",
			Name:      "catalog_mutations_total",
			Help:      "Persisted catalog mutations by audit action and resulting status.",
		}, []string{"action", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.mutations,
	)
	if feedClients != nil {
		m.feedConns = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "songcatalog",
			Name:      "feed_clients",
			Help:      "Connected catalog feed websocket clients.",
		}, func() float64 { return float64(feedClients()) })
		reg.MustRegister(m.feedConns)
	}
	return m
}

// CatalogChanged 统计变更
func (m *Metrics) CatalogChanged(_ context.Context, _ *model.Song, entry model.AuditEntry) {
	m.mutations.WithLabelValues(string(entry.Action), string(entry.NewState)).Inc()
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware 按路由模板统计请求，避免 id 造成标签爆炸
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
