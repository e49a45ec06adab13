package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "levelworks"

// Metrics groups the application collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	Calculations     *prometheus.CounterVec
	DocumentsCreated *prometheus.CounterVec
	Emails           *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New registers the application collectors, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calculations_total",
				Help:      "Total number of pricing calculations by outcome",
			},
			[]string{"outcome"},
		),
		DocumentsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_created_total",
				Help:      "Total number of invoices and estimates created",
			},
			[]string{"kind"},
		),
		Emails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_total",
				Help:      "Total number of document emails by outcome",
			},
			[]string{"outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}

	reg.MustRegister(
		m.Calculations,
		m.DocumentsCreated,
		m.Emails,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCalculation counts a calculator call; outcome is "ok" or the error class.
func (m *Metrics) ObserveCalculation(outcome string) {
	m.Calculations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDocumentCreated(kind string) {
	m.DocumentsCreated.WithLabelValues(kind).Inc()
}

// ObserveEmail counts a delivery attempt as "sent" or "fallback".
func (m *Metrics) ObserveEmail(outcome string) {
	m.Emails.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(route, method, status string, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, status).Observe(elapsed.Seconds())
}
