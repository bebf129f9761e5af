package metrics

import (
	margo "github.com/margo-labs/margo/pkg/margo/v1/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRegistryProvider implements the RegistryProvider interface
// using a standard Prometheus registry.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

// NewPrometheusRegistryProvider creates a new metrics provider backed by Prometheus.
func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{
		registry: prometheus.NewRegistry(),
	}
}

// Registry returns the underlying Prometheus registry.
func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}

// Ensure implementation satisfies the interface.
var _ margo.RegistryProvider = (*PrometheusRegistryProvider)(nil)

// EngineInstruments bundles the Prometheus collectors the engine records.
// All collectors are registered on construction; registration failures
// indicate a duplicate registration and are treated as programmer error.
type EngineInstruments struct {
	SolvesTotal          prometheus.Counter
	SolveDuration        prometheus.Histogram
	CacheRebuildsTotal   prometheus.Counter
	QueriesTotal         *prometheus.CounterVec
	QueryRejectionsTotal *prometheus.CounterVec
}

// NewEngineInstruments creates and registers the engine's collector set on
// the given registry.
func NewEngineInstruments(registry *prometheus.Registry) *EngineInstruments {
	inst := &EngineInstruments{
		SolvesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "margo_solves_total",
			Help: "Number of completed solve passes.",
		}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "margo_solve_duration_seconds",
			Help:    "Wall-clock duration of solve passes.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheRebuildsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "margo_cache_rebuilds_total",
			Help: "Number of atomic replacements of the materialized marginal cache.",
		}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "margo_queries_total",
			Help: "Number of answered queries by kind.",
		}, []string{"kind"}),
		QueryRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "margo_query_rejections_total",
			Help: "Number of rejected queries by reason.",
		}, []string{"reason"}),
	}
	registry.MustRegister(
		inst.SolvesTotal,
		inst.SolveDuration,
		inst.CacheRebuildsTotal,
		inst.QueriesTotal,
		inst.QueryRejectionsTotal,
	)
	return inst
}
