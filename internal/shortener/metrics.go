package shortener

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeLabel is the label for request outcomes (e.g., "created", "not_found").
	OutcomeLabel = "outcome"
	// ResultLabel is the label for a single allocation probe ("free", "taken").
	ResultLabel = "result"
	// OperationLabel is the label for store metrics, naming the store operation.
	OperationLabel = "operation"
	// StatusLabel is the label for store metrics, representing the outcome.
	StatusLabel = "status"
)

const (
	OutcomeCreated   = "created"
	OutcomeReused    = "reused"
	OutcomeRedirect  = "redirected"
	OutcomeNotFound  = "not_found"
	OutcomeExpired   = "expired"
	OutcomeConflict  = "conflict"
	OutcomeInvalid   = "invalid"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"

	StatusSuccess   = "success"
	StatusNotFound  = "not_found"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

// Metrics contains the Prometheus collectors for the shortener core.
type Metrics struct {
	Shortens        *prometheus.CounterVec
	Redirects       *prometheus.CounterVec
	AllocationProbe *prometheus.CounterVec
	InsertRetries   prometheus.Counter
	StoreDuration   *prometheus.HistogramVec
	StoreTotal      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what unit tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Shortens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_shorten_total",
			Help: "Shorten requests by outcome.",
		}, []string{OutcomeLabel}),
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_redirect_total",
			Help: "Redirect resolutions by outcome.",
		}, []string{OutcomeLabel}),
		AllocationProbe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_allocation_probe_total",
			Help: "Candidate short codes checked against the store.",
		}, []string{ResultLabel}),
		InsertRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortener_insert_retry_total",
			Help: "Inserts retried after the store rejected a duplicate short code.",
		}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shortener_store_duration_seconds",
			Help:    "Duration of store operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{OperationLabel}),
		StoreTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortener_store_total",
			Help: "Store operations by status.",
		}, []string{OperationLabel, StatusLabel}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Shortens,
			m.Redirects,
			m.AllocationProbe,
			m.InsertRetries,
			m.StoreDuration,
			m.StoreTotal,
		)
	}
	return m
}
