// Package metrics contains the Prometheus collectors exposed by the driver
// and the HTTP server that serves them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheMetrics counts cache activity, labelled by cache name ("content" or "size").
type CacheMetrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Evictions     *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
}

// NewCacheMetrics creates unregistered cache collectors.
func NewCacheMetrics(namespace string) *CacheMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"cache"})
	}
	return &CacheMetrics{
		Hits:          counter("hits_total", "Cache lookups answered without the object store."),
		Misses:        counter("misses_total", "Cache lookups that went to the object store."),
		Evictions:     counter("evictions_total", "Entries evicted to respect cache capacity."),
		Invalidations: counter("invalidations_total", "Entries dropped after a write or remove."),
	}
}

func (m *CacheMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Hits, m.Misses, m.Evictions, m.Invalidations}
}

// StoreMetrics tracks object store calls.
type StoreMetrics struct {
	Duration *prometheus.HistogramVec
}

// NewStoreMetrics creates unregistered object store collectors.
func NewStoreMetrics(namespace string) *StoreMetrics {
	return &StoreMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "object_store",
			Name:      "request_duration_seconds",
			Help:      "Duration of object store calls by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
	}
}

// Observe records one call.
func (m *StoreMetrics) Observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Duration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// Metrics bundles every collector exposed by the driver.
type Metrics struct {
	Cache *CacheMetrics
	Store *StoreMetrics
}

// NewMetrics creates all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Cache: NewCacheMetrics(namespace),
		Store: NewStoreMetrics(namespace),
	}
}

// RegisterMetrics allows to register all driver metrics on reg. On failure
// the collectors registered so far are unregistered again.
func (m *Metrics) RegisterMetrics(reg prometheus.Registerer) error {
	cs := append(m.Cache.collectors(), m.Store.Duration)
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, done := range cs[:i] {
				reg.Unregister(done)
			}
			return err
		}
	}
	return nil
}

// MetricsServer serves a Prometheus registry over HTTP.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server listening on addr with Go runtime and process
// collectors pre-registered.
func New(namespace, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		registry: reg,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Registry returns the registry served at /metrics.
func (s *MetricsServer) Registry() *prometheus.Registry {
	return s.registry
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
