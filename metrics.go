package cybernet

// metrics.go exposes engine activity as prometheus metrics.  The
// engine registers its collectors on a Registerer the caller provides
// and never opens a port itself; embedding programs decide whether and
// where to serve the registry.

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics holds the instruments the step loop and traffic model
// update as they run
type EngineMetrics struct {
	stepsTotal     prometheus.Counter
	requestsTotal  *prometheus.CounterVec
	aclEvaluations prometheus.Counter
	congestionHits prometheus.Counter
	nodeCount      prometheus.Gauge
	linkCount      prometheus.Gauge
	pendingOps     prometheus.Gauge
}

// createEngineMetrics builds the instrument set and registers it on the
// given Registerer.  A nil Registerer leaves the instruments live but
// unregistered, which test code relies on.
func createEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	em := &EngineMetrics{
		stepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cybernet",
			Name:      "steps_total",
			Help:      "Simulation steps executed.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cybernet",
			Name:      "requests_total",
			Help:      "Requests evaluated, by response status.",
		}, []string{"status"}),
		aclEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cybernet",
			Name:      "acl_evaluations_total",
			Help:      "ACL chain evaluations performed by the traffic model.",
		}),
		congestionHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cybernet",
			Name:      "congestion_events_total",
			Help:      "Services marked overwhelmed by link congestion.",
		}),
		nodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cybernet",
			Name:      "topology_nodes",
			Help:      "Devices in the loaded topology.",
		}),
		linkCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cybernet",
			Name:      "topology_links",
			Help:      "Links in the loaded topology.",
		}),
		pendingOps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cybernet",
			Name:      "pending_operations",
			Help:      "Durationed transitions awaiting resolution.",
		}),
	}
	if reg != nil {
		reg.MustRegister(em.stepsTotal, em.requestsTotal, em.aclEvaluations,
			em.congestionHits, em.nodeCount, em.linkCount, em.pendingOps)
	}
	return em
}

func (em *EngineMetrics) step() {
	em.stepsTotal.Inc()
}

func (em *EngineMetrics) request(status RespStatus) {
	em.requestsTotal.WithLabelValues(string(status)).Inc()
}

func (em *EngineMetrics) aclEval() {
	em.aclEvaluations.Inc()
}

func (em *EngineMetrics) congestion() {
	em.congestionHits.Inc()
}

func (em *EngineMetrics) topoSize(nodes, links int) {
	em.nodeCount.Set(float64(nodes))
	em.linkCount.Set(float64(links))
}

func (em *EngineMetrics) pending(n int) {
	em.pendingOps.Set(float64(n))
}
