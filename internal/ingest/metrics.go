package ingest

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for kb_ingestions_total.
const (
	outcomeApproved = "approved"
	outcomeIngested = "ingested"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected_state"
)

// Metrics holds the ingestion counters and latency histogram.
type Metrics struct {
	ingestions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the ingestion metrics on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_ingestions_total",
				Help: "Ingestion attempts by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kb_ingestion_duration_seconds",
				Help:    "Duration of ingestion attempts.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
	}
	for _, c := range []prometheus.Collector{m.ingestions, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(seconds)
}
