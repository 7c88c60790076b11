// Package metrics exposes Prometheus instruments for confirmations and
// record store latency.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghmassaro/presenca-treino/internal/application"
	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

const namespace = "presenca"

// Recorder owns the service instruments.
type Recorder struct {
	registry      *prometheus.Registry
	results       *prometheus.CounterVec
	retries       prometheus.Counter
	storeDuration *prometheus.HistogramVec
}

var _ application.ConfirmationObserver = (*Recorder)(nil)

// NewRecorder registers the instruments on a fresh registry that also
// carries the Go runtime and process collectors.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmation_results_total",
			Help:      "Attendance confirmation attempts by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmation_retries_total",
			Help:      "Confirmation transactions re-run after losing a race.",
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of record store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.results,
		r.retries,
		r.storeDuration,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}

	for _, result := range []application.ConfirmationResult{
		application.ResultConfirmed,
		application.ResultAlreadyConfirmed,
		application.ResultFull,
	} {
		r.results.WithLabelValues(string(result))
	}
	return r, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ConfirmationRecorded implements application.ConfirmationObserver.
func (r *Recorder) ConfirmationRecorded(result application.ConfirmationResult) {
	r.results.WithLabelValues(string(result)).Inc()
}

// ConfirmationRetried implements application.ConfirmationObserver.
func (r *Recorder) ConfirmationRetried() {
	r.retries.Inc()
}

func (r *Recorder) observe(operation string, started time.Time) {
	r.storeDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// InstrumentStore wraps store so every top-level call is timed.
func InstrumentStore(store persistence.Store, r *Recorder) persistence.Store {
	if r == nil {
		return store
	}
	return &instrumentedStore{next: store, rec: r}
}

type instrumentedStore struct {
	next persistence.Store
	rec  *Recorder
}

func (s *instrumentedStore) Create(ctx context.Context, collection string, fields persistence.Fields) (persistence.Record, error) {
	defer s.rec.observe("create", time.Now())
	return s.next.Create(ctx, collection, fields)
}

func (s *instrumentedStore) Get(ctx context.Context, collection, id string) (persistence.Record, error) {
	defer s.rec.observe("get", time.Now())
	return s.next.Get(ctx, collection, id)
}

func (s *instrumentedStore) QueryEquals(ctx context.Context, collection, field string, value any) ([]persistence.Record, error) {
	defer s.rec.observe("query_equals", time.Now())
	return s.next.QueryEquals(ctx, collection, field, value)
}

func (s *instrumentedStore) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	defer s.rec.observe("update", time.Now())
	return s.next.Update(ctx, collection, id, fields)
}

func (s *instrumentedStore) Delete(ctx context.Context, collection, id string) error {
	defer s.rec.observe("delete", time.Now())
	return s.next.Delete(ctx, collection, id)
}

func (s *instrumentedStore) OrderBy(ctx context.Context, collection, field string, dir persistence.Direction) ([]persistence.Record, error) {
	defer s.rec.observe("order_by", time.Now())
	return s.next.OrderBy(ctx, collection, field, dir)
}

func (s *instrumentedStore) RunInTransaction(ctx context.Context, fn persistence.TxFunc) error {
	defer s.rec.observe("transaction", time.Now())
	return s.next.RunInTransaction(ctx, fn)
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
