package market

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	served *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_fetch_total",
			Help: "Market data responses by endpoint and origin (live, snapshot, fallback).",
		}, []string{"endpoint", "source"}),
	}
	if registry != nil {
		registry.MustRegister(m.served)
	}
	return m
}

func (m *Metrics) IncServed(endpoint string, origin Origin) {
	if m == nil {
		return
	}
	m.served.WithLabelValues(endpoint, string(origin)).Inc()
}
