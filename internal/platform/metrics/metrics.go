package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CitationsCreated       prometheus.Counter
	CitationCreateDuration prometheus.Histogram
	PaymentsRecorded       prometheus.Counter
	PaymentsReversed       prometheus.Counter
	GuardRejections        *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	OutboxPublished        prometheus.Counter
	OutboxFailures         prometheus.Counter
}

// New creates and registers all Prometheus metrics against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers metrics against reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CitationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_citations_created_total",
			Help: "Total number of citations created",
		}),
		CitationCreateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vtrack_citation_create_duration_seconds",
			Help:    "Duration of citation creation including evidence storage",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		PaymentsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_payments_recorded_total",
			Help: "Total number of payments recorded against citations",
		}),
		PaymentsReversed: f.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_payments_reversed_total",
			Help: "Total number of payments reversed by an administrator",
		}),
		GuardRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtrack_guard_rejections_total",
			Help: "Deletes rejected because dependent records still exist",
		}, []string{"entity"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vtrack_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_outbox_published_total",
			Help: "Outbox events published to the broker",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed",
		}),
	}
}

func (m *Metrics) IncrementCitationsCreated() {
	m.CitationsCreated.Inc()
}

// ObserveCitationCreate records the duration of a citation creation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCitationCreate(start time.Time) {
	m.CitationCreateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementPaymentsRecorded() {
	m.PaymentsRecorded.Inc()
}

func (m *Metrics) IncrementPaymentsReversed() {
	m.PaymentsReversed.Inc()
}

// IncrementGuardRejection counts a rejected delete for entity.
func (m *Metrics) IncrementGuardRejection(entity string) {
	m.GuardRejections.WithLabelValues(entity).Inc()
}

// ObserveHTTPRequest records latency for a routed request.
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, start time.Time) {
	m.HTTPRequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementOutboxPublished(n int) {
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailures() {
	m.OutboxFailures.Inc()
}
