// Package prometheus exports slotkv hook events as Prometheus metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/slotkv/hooks"
)

// Default histogram buckets for topology refresh latency (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

// Hooks implements hooks.Hooks with counters and a refresh latency histogram.
type Hooks struct {
	refreshDuration  prometheus.Histogram
	refreshesTotal   *prometheus.CounterVec
	topologyNodes    prometheus.Gauge
	selfHealsTotal   *prometheus.CounterVec
	cacheWriteErrors prometheus.Counter
	sweepsTotal      *prometheus.CounterVec
	sweptEntries     prometheus.Counter
	approxRoutes     prometheus.Counter
	dialErrors       *prometheus.CounterVec
}

var _ hooks.Hooks = (*Hooks)(nil)

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Hooks {
	h := &Hooks{
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotkv_topology_refresh_duration_seconds",
			Help:    "Cluster topology discovery latency in seconds",
			Buckets: defaultBuckets,
		}),

		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotkv_topology_refreshes_total",
			Help: "Total number of topology discovery attempts",
		}, []string{"result"}),

		topologyNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slotkv_topology_nodes",
			Help: "Number of slot ranges in the last resolved topology",
		}),

		selfHealsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotkv_topology_self_heals_total",
			Help: "Cached topology entries dropped on read",
		}, []string{"reason"}),

		cacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotkv_cache_write_failures_total",
			Help: "Local cache writes that failed",
		}),

		sweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotkv_cache_sweeps_total",
			Help: "File cache sweeps",
		}, []string{"success"}),

		sweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotkv_cache_swept_entries_total",
			Help: "Expired entries removed by sweeps",
		}),

		approxRoutes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotkv_approximate_routes_total",
			Help: "Keys routed with the even-partition approximation",
		}),

		dialErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotkv_node_dial_failures_total",
			Help: "Failed connection attempts per node address",
		}, []string{"addr"}),
	}

	reg.MustRegister(
		h.refreshDuration,
		h.refreshesTotal,
		h.topologyNodes,
		h.selfHealsTotal,
		h.cacheWriteErrors,
		h.sweepsTotal,
		h.sweptEntries,
		h.approxRoutes,
		h.dialErrors,
	)
	return h
}

func (h *Hooks) TopologyRefreshed(nodes int, took time.Duration) {
	h.refreshDuration.Observe(took.Seconds())
	h.refreshesTotal.WithLabelValues("ok").Inc()
	h.topologyNodes.Set(float64(nodes))
}

func (h *Hooks) TopologyUnavailable(error) {
	h.refreshesTotal.WithLabelValues("unavailable").Inc()
}

func (h *Hooks) TopologySelfHeal(reason string) {
	h.selfHealsTotal.WithLabelValues(reason).Inc()
}

func (h *Hooks) CacheWriteFailed(string, error) {
	h.cacheWriteErrors.Inc()
}

func (h *Hooks) SweepCompleted(removed int, err error) {
	h.sweepsTotal.WithLabelValues(boolLabel(err == nil)).Inc()
	h.sweptEntries.Add(float64(removed))
}

func (h *Hooks) ApproximateRoute(int, int) {
	h.approxRoutes.Inc()
}

func (h *Hooks) NodeDialFailed(addr string, _ error) {
	h.dialErrors.WithLabelValues(addr).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
