package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	workflows       *prometheus.CounterVec
	divergences     *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	priceRefreshes  *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_workflows_total",
			Help: "Ledger workflow outcomes.",
		}, []string{"workflow", "status"}),
		divergences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_divergences_total",
			Help: "Workflows that recorded a transaction but failed a later write.",
		}, []string{"workflow", "step"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_refresh_duration_seconds",
			Help:    "Duration of ledger refreshes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger", "status"}),
		priceRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_price_refresh_total",
			Help: "Market price merges into the ledger price book.",
		}, []string{"status"}),
	}
	if registry != nil {
		registry.MustRegister(m.workflows, m.divergences, m.refreshDuration, m.priceRefreshes)
	}
	return m
}

func (m *Metrics) IncWorkflow(workflow, status string) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(workflow, status).Inc()
}

func (m *Metrics) IncDivergence(workflow, step string) {
	if m == nil {
		return
	}
	m.divergences.WithLabelValues(workflow, step).Inc()
}

func (m *Metrics) ObserveRefresh(trigger, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.WithLabelValues(trigger, status).Observe(d.Seconds())
}

func (m *Metrics) IncPriceRefresh(status string) {
	if m == nil {
		return
	}
	m.priceRefreshes.WithLabelValues(status).Inc()
}
