package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so engines built in tests need no registry.
type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	StockMovements  *prometheus.CounterVec
	StatusChanges   *prometheus.CounterVec
	CabinetQuotes   prometheus.Counter
	CacheLookups    *prometheus.CounterVec
	ValidationFails *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fms_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		StockMovements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_stock_movements_total",
			Help: "Stock movements written, by movement and reference type.",
		}, []string{"movement_type", "reference_type"}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_status_changes_total",
			Help: "Document status transitions, by entity and target status.",
		}, []string{"entity", "status"}),
		CabinetQuotes: f.NewCounter(prometheus.CounterOpts{
			Name: "fms_cabinet_quotes_total",
			Help: "Cabinet cost calculations performed.",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_cache_lookups_total",
			Help: "Catalog cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		ValidationFails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fms_validation_failures_total",
			Help: "Rejected engine operations by entity.",
		}, []string{"entity"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Movement(movementType, referenceType string) {
	if m == nil {
		return
	}
	m.StockMovements.WithLabelValues(movementType, referenceType).Inc()
}

func (m *Metrics) Status(entity, status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(entity, status).Inc()
}

func (m *Metrics) Quote() {
	if m == nil {
		return
	}
	m.CabinetQuotes.Inc()
}

func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Rejected(entity string) {
	if m == nil {
		return
	}
	m.ValidationFails.WithLabelValues(entity).Inc()
}
