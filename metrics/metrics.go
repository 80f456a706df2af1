package metrics

import (
	"fmt"
	"net/http"
	"time"

	"go-scooterscan/discovery"
	"go-scooterscan/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the scanner's Prometheus metrics. It observes upstream
// queries and finished discovery runs.
type Collector struct {
	gatherer prometheus.Gatherer

	Queries        *prometheus.CounterVec
	QueryDurations *prometheus.HistogramVec
	Runs           *prometheus.CounterVec
	Records        *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns
// the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scooterscan_queries_total",
		Help: "Upstream queries by provider and outcome (ok, auth_expired, transient, malformed, error).",
	}, []string{"provider", "outcome"}), "scooterscan_queries_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scooterscan_query_duration_seconds",
		Help:    "Upstream query latency in seconds, including rate limiter waits.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"}), "scooterscan_query_duration_seconds")
	if err != nil {
		return nil, err
	}
	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scooterscan_runs_total",
		Help: "Finished discovery runs by terminal state.",
	}, []string{"state"}), "scooterscan_runs_total")
	if err != nil {
		return nil, err
	}
	records, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scooterscan_records",
		Help: "Records held by the most recently finished run, by kind.",
	}, []string{"kind"}), "scooterscan_records")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Queries:        queries,
		QueryDurations: durations,
		Runs:           runs,
		Records:        records,
	}, nil
}

// ObserveQuery satisfies geoquery.Observer.
func (c *Collector) ObserveQuery(provider, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(provider, outcome).Inc()
	c.QueryDurations.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordRun satisfies discovery.RunRecorder.
func (c *Collector) RecordRun(state discovery.State, counts map[types.Kind]int) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(string(state)).Inc()
	for _, k := range []types.Kind{types.Individual, types.Aggregate, types.EmptyAggregate} {
		c.Records.WithLabelValues(k.String()).Set(float64(counts[k]))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
