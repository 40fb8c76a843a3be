package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// KeyPrefixLabel is the label for cache metrics, representing the key prefix.
const KeyPrefixLabel = "key_prefix"

// Metrics contains the Prometheus collectors for the link cache.
type Metrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
	Errors *prometheus.CounterVec
}

// NewMetrics creates the cache collectors and registers them with reg if it is non-nil.
func NewMetrics(reg prometheus.Registerer) Metrics {
	m := Metrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hit_count",
			Help: "The number of cache hits",
		}, []string{KeyPrefixLabel}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_miss_count",
			Help: "The number of cache misses",
		}, []string{KeyPrefixLabel}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_error_count",
			Help: "The number of failed cache operations",
		}, []string{KeyPrefixLabel}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Errors)
	}
	return m
}
