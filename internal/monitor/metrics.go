package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the monitor's prometheus collectors. A nil *Metrics is valid
// and turns every recording call into a no-op, which keeps tests free of
// registry bookkeeping.
type Metrics struct {
	Cycles           prometheus.Counter
	CycleFailures    prometheus.Counter
	AlertsDispatched prometheus.Counter
	DeliveryFailures prometheus.Counter
	SymbolsTracked   prometheus.Gauge
	LastCycleUnix    prometheus.Gauge
}

// NewMetrics builds and registers the monitor collectors on the default
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "price_sentinel",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "The total number of completed price check cycles",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "price_sentinel",
			Subsystem: "monitor",
			Name:      "cycle_failures_total",
			Help:      "The total number of cycles aborted by a price fetch failure",
		}),
		AlertsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "price_sentinel",
			Subsystem: "monitor",
			Name:      "alerts_dispatched_total",
			Help:      "The total number of threshold alerts dispatched",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "price_sentinel",
			Subsystem: "monitor",
			Name:      "delivery_failures_total",
			Help:      "The total number of failed alert deliveries to notification channels",
		}),
		SymbolsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "price_sentinel",
			Subsystem: "monitor",
			Name:      "symbols_tracked",
			Help:      "The current number of tracked symbols",
		}),
		LastCycleUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "price_sentinel",
			Subsystem: "monitor",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the most recent completed cycle",
		}),
	}

	prometheus.MustRegister(m.Cycles)
	prometheus.MustRegister(m.CycleFailures)
	prometheus.MustRegister(m.AlertsDispatched)
	prometheus.MustRegister(m.DeliveryFailures)
	prometheus.MustRegister(m.SymbolsTracked)
	prometheus.MustRegister(m.LastCycleUnix)

	return m
}

func (m *Metrics) cycleRan(unix float64) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.LastCycleUnix.Set(unix)
}

func (m *Metrics) cycleFailed() {
	if m == nil {
		return
	}
	m.CycleFailures.Inc()
}

func (m *Metrics) alertDispatched() {
	if m == nil {
		return
	}
	m.AlertsDispatched.Inc()
}

// DeliveryFailed counts one failed delivery to a notification channel. It is
// exported for the dispatcher, which shares this collector set.
func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) trackSymbols(n int) {
	if m == nil {
		return
	}
	m.SymbolsTracked.Set(float64(n))
}
