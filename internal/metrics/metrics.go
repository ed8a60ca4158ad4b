// Package metrics holds the Prometheus collectors for the stock gate.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flash_sale"

type Metrics struct {
	// purchase attempts by terminal outcome
	PurchaseOutcomes *prometheus.CounterVec
	// gate decrements undone, by reason: sold_out, out_of_stock,
	// product_not_found, lock_conflict, timeout, panic, durable_error
	Compensations *prometheus.CounterVec
	// compensating increments that could not reach redis
	CompensationFailures prometheus.Counter
	// reseed retries taken by the reseed purchase path
	Reseeds          prometheus.Counter
	ResyncOutcomes   *prometheus.CounterVec
	PurchaseDuration prometheus.Histogram
	// last gate value observed after a successful admission
	GateLevel *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PurchaseOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_outcomes_total",
			Help:      "Total number of purchase attempts by outcome",
		}, []string{"outcome"}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_compensations_total",
			Help:      "Total number of compensating increments applied to the gate counter",
		}, []string{"reason"}),
		CompensationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_compensation_failures_total",
			Help:      "Total number of compensating increments that failed",
		}),
		Reseeds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_reseeds_total",
			Help:      "Total number of gate counters reseeded from the database during a purchase",
		}),
		ResyncOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_outcomes_total",
			Help:      "Total number of resync operations by outcome",
		}, []string{"outcome"}),
		PurchaseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purchase_duration_seconds",
			Help:      "Latency of purchase attempts",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		GateLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_stock_level",
			Help:      "Gate counter value observed by the last admitted purchase",
		}, []string{"product_id"}),
	}
}

func (m *Metrics) SetGateLevel(productID int64, level int64) {
	m.GateLevel.WithLabelValues(strconv.FormatInt(productID, 10)).Set(float64(level))
}
