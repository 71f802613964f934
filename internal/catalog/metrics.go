package catalog

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	mutations *prometheus.CounterVec
	entries   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_mutations_total",
			Help: "Catalog mutations by action and outcome",
		}, []string{"action", "outcome"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_batch_entries_total",
			Help: "Entries affected by batch actions",
		}, []string{"action"}),
	}
	reg.MustRegister(m.mutations, m.entries)
	return m
}

func (m *Metrics) mutation(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutations.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) batch(action BatchAction, n int64) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(string(action)).Add(float64(n))
}
