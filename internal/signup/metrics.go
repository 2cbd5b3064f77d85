package signup

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics counts submissions by outcome and times them.
type Metrics struct {
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics registers the sign-up collectors on reg. Collectors already
// registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "expense",
			Subsystem: "signup",
			Name:      "submissions_total",
			Help:      "Count of sign-up form submissions by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "expense",
			Subsystem: "signup",
			Name:      "submission_duration_seconds",
			Help:      "Latency distribution of sign-up submissions",
			Buckets:   histogramBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.submissions); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		m.submissions = existing
	}
	if err := reg.Register(m.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		m.duration = existing
	}
	return m, nil
}

// Collectors lists the collectors, for pushing to a Pushgateway.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.submissions, m.duration}
}

func (m *Metrics) observe(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(outcome)).Inc()
	m.duration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}
