package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa las métricas Prometheus del pool. Los métodos toleran
// receiver nil para que los services no tengan que chequear si hay métricas
// configuradas (tests, CLI).
type Metrics struct {
	codesGenerated prometheus.Counter
	collisions     prometheus.Counter
	unassigned     prometheus.Gauge
	currentLength  prometheus.Gauge
}

// New crea y registra todas las métricas en el registry default.
func New() *Metrics {
	return &Metrics{
		codesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pawtrace_pool_codes_generated_total",
			Help: "Total short codes minted into the pool",
		}),
		collisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pawtrace_pool_collisions_total",
			Help: "Short id candidates rejected by the uniqueness constraint",
		}),
		unassigned: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pawtrace_pool_unassigned",
			Help: "Pool entries not yet bound to a pet",
		}),
		currentLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pawtrace_pool_current_length",
			Help: "Short id length currently being generated",
		}),
	}
}

func (m *Metrics) CodeGenerated() {
	if m == nil {
		return
	}
	m.codesGenerated.Inc()
}

func (m *Metrics) Collision() {
	if m == nil {
		return
	}
	m.collisions.Inc()
}

func (m *Metrics) SetUnassigned(n int) {
	if m == nil {
		return
	}
	m.unassigned.Set(float64(n))
}

func (m *Metrics) SetCurrentLength(n int) {
	if m == nil {
		return
	}
	m.currentLength.Set(float64(n))
}
