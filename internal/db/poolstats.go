package db

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DBNameLabel is the constant label naming the database a pool serves.
const DBNameLabel = "db_name"

// StatSource is anything that reports pgxpool statistics.
type StatSource interface {
	Stat() *pgxpool.Stat
}

// PoolStatsCollector exports pgxpool.Stat on every scrape.
// It implements the prometheus.Collector interface.
type PoolStatsCollector struct {
	pool StatSource

	maxConns        *prometheus.Desc
	totalConns      *prometheus.Desc
	acquiredConns   *prometheus.Desc
	idleConns       *prometheus.Desc
	acquireCount    *prometheus.Desc
	acquireDuration *prometheus.Desc
	emptyAcquire    *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool.
func NewPoolStatsCollector(pool StatSource, dbName string) *PoolStatsCollector {
	labels := prometheus.Labels{DBNameLabel: dbName}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(name, help, nil, labels)
	}

	return &PoolStatsCollector{
		pool:            pool,
		maxConns:        desc("db_pool_max_conns", "Maximum number of connections in the pool."),
		totalConns:      desc("db_pool_total_conns", "Total number of connections in the pool."),
		acquiredConns:   desc("db_pool_acquired_conns", "Number of currently acquired connections."),
		idleConns:       desc("db_pool_idle_conns", "Number of currently idle connections."),
		acquireCount:    desc("db_pool_acquire_count_total", "Cumulative count of successful acquisitions."),
		acquireDuration: desc("db_pool_acquire_duration_seconds_total", "Total time spent waiting to acquire a connection."),
		emptyAcquire:    desc("db_pool_empty_acquire_total", "Acquisitions that had to wait because the pool was empty."),
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxConns
	ch <- c.totalConns
	ch <- c.acquiredConns
	ch <- c.idleConns
	ch <- c.acquireCount
	ch <- c.acquireDuration
	ch <- c.emptyAcquire
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireDuration, prometheus.CounterValue, s.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
}
