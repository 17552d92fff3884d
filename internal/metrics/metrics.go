// Package metrics exposes ledger and flow activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celerix-dev/celerix-market/pkg/schema"
)

const namespace = "celerix_market"

// Collector owns a private registry so several instances can coexist in tests.
// It implements engine.Observer.
type Collector struct {
	registry *prometheus.Registry

	worksCreated  *prometheus.CounterVec
	purchases     prometheus.Counter
	volume        prometheus.Counter
	revenuePaid   *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	flowsStarted  *prometheus.CounterVec
	flowsFinished *prometheus.CounterVec
	flowDuration  *prometheus.HistogramVec
	flowsInFlight prometheus.Gauge
}

// New builds a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		worksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "works_created_total",
			Help:      "Works registered, by style and lineage.",
		}, []string{"style", "lineage"}),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchases recorded.",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_units_total",
			Help:      "Sum of purchase prices in whole units.",
		}),
		revenuePaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_units_total",
			Help:      "Revenue paid out in whole units, by kind.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_rejected_total",
			Help:      "Ledger operations rejected, by operation and error code.",
		}, []string{"op", "code"}),
		flowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_started_total",
			Help:      "Creation flows started, by kind.",
		}, []string{"kind"}),
		flowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_finished_total",
			Help:      "Creation flows finished, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		flowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "Wall time of creation flows.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}, []string{"kind"}),
		flowsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flows_in_flight",
			Help:      "Creation flows currently running.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.worksCreated,
		c.purchases,
		c.volume,
		c.revenuePaid,
		c.rejected,
		c.flowsStarted,
		c.flowsFinished,
		c.flowDuration,
		c.flowsInFlight,
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) WorkCreated(w schema.Work) {
	lineage := "original"
	if w.ParentID != nil {
		lineage = "derivative"
	}
	c.worksCreated.WithLabelValues(w.Style.String(), lineage).Inc()
}

func (c *Collector) PurchaseRecorded(p schema.Purchase, entries []schema.RevenueEntry) {
	c.purchases.Inc()
	c.volume.Add(units(p.Price))
	for _, e := range entries {
		c.revenuePaid.WithLabelValues(e.Kind.String()).Add(units(e.Amount))
	}
}

func (c *Collector) OperationRejected(op string, err error) {
	c.rejected.WithLabelValues(op, schema.CodeOf(err)).Inc()
}

// FlowStarted marks a flow of the given kind as running and returns a func
// to call with the flow's outcome when it ends.
func (c *Collector) FlowStarted(kind string) func(outcome string) {
	start := time.Now()
	c.flowsStarted.WithLabelValues(kind).Inc()
	c.flowsInFlight.Inc()
	return func(outcome string) {
		c.flowsInFlight.Dec()
		c.flowsFinished.WithLabelValues(kind, outcome).Inc()
		c.flowDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

func units(a schema.Amount) float64 {
	return float64(a) / schema.AmountScale
}
