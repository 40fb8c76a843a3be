package shortener

import (
	"context"
	"time"

	"github.com/sundayezeilo/shorturl/internal/errx"
)

// InstrumentedStore records duration and status of every call to the wrapped Store.
type InstrumentedStore struct {
	next    Store
	metrics *Metrics
}

// Instrument wraps next with metrics.
func Instrument(next Store, metrics *Metrics) *InstrumentedStore {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &InstrumentedStore{next: next, metrics: metrics}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	switch {
	case err == nil:
	case errx.Is(err, errx.NotFound):
		status = StatusNotFound
	case errx.Is(err, errx.Duplicate):
		status = StatusDuplicate
	default:
		status = StatusError
	}
	s.metrics.StoreTotal.WithLabelValues(op, status).Inc()
}

func (s *InstrumentedStore) FindByCode(ctx context.Context, code string) (link Link, err error) {
	defer func(start time.Time) { s.observe("FindByCode", start, err) }(time.Now())
	return s.next.FindByCode(ctx, code)
}

func (s *InstrumentedStore) FindByURL(ctx context.Context, url string) (link Link, err error) {
	defer func(start time.Time) { s.observe("FindByURL", start, err) }(time.Now())
	return s.next.FindByURL(ctx, url)
}

func (s *InstrumentedStore) Insert(ctx context.Context, in Link) (link Link, err error) {
	defer func(start time.Time) { s.observe("Insert", start, err) }(time.Now())
	return s.next.Insert(ctx, in)
}

func (s *InstrumentedStore) IncrementClicks(ctx context.Context, code string, now time.Time) (link Link, err error) {
	defer func(start time.Time) { s.observe("IncrementClicks", start, err) }(time.Now())
	return s.next.IncrementClicks(ctx, code, now)
}

func (s *InstrumentedStore) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("Ping", start, err) }(time.Now())
	return s.next.Ping(ctx)
}
