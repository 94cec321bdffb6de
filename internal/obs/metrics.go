package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"backtester/internal/schema"
)

const namespace = "backtester"

// Metrics collects run counters on a private prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	signals        prometheus.Counter
	executions     prometheus.Counter
	observerPanics prometheus.Counter
	orderStatus    *prometheus.CounterVec
	riskRejects    *prometheus.CounterVec
}

// NewMetrics allocates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "ticks_total",
			Help:      "Ticks consumed from the feed",
		}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "signals_total",
			Help:      "Ticks on which the strategy reported a signal",
		}),
		executions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "executions_total",
			Help:      "Executions recorded by the matcher",
		}),
		observerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "observer_panics_total",
			Help:      "Observer callbacks that panicked and were recovered",
		}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "status_changes_total",
			Help:      "Order notifications by resulting status",
		}, []string{"status"}),
		riskRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "rejects_total",
			Help:      "Orders rejected by pre-trade risk by reason",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.ticks, m.signals, m.executions, m.observerPanics, m.orderStatus, m.riskRejects)
	return m
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) IncSignal() {
	if m == nil {
		return
	}
	m.signals.Inc()
}

func (m *Metrics) IncExecution() {
	if m == nil {
		return
	}
	m.executions.Inc()
}

func (m *Metrics) IncObserverPanic() {
	if m == nil {
		return
	}
	m.observerPanics.Inc()
}

// ObserveOrder counts an order notification by its status.
func (m *Metrics) ObserveOrder(status schema.OrderStatus) {
	if m == nil {
		return
	}
	m.orderStatus.WithLabelValues(status.String()).Inc()
}

// IncRiskReject records a risk denial.
func (m *Metrics) IncRiskReject(reason schema.RiskReason) {
	if m == nil {
		return
	}
	m.riskRejects.WithLabelValues(reason.String()).Inc()
}

// Summary flattens every counter into "name{label=value}" -> value.
func (m *Metrics) Summary() (map[string]float64, error) {
	if m == nil {
		return map[string]float64{}, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "{" + label.GetName() + "=" + label.GetValue() + "}"
			}
			out[key] = metric.GetCounter().GetValue()
		}
	}
	return out, nil
}
