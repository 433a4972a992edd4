package broadcast

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/evalmesh/core"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "evalmesh"

// PrometheusSink exports run and unit counters. One sink may serve many runs;
// its collectors are registered once, on construction.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsActive   prometheus.Gauge
	units        *prometheus.CounterVec
	unitDuration prometheus.Histogram
	passRate     *prometheus.GaugeVec

	mu      sync.Mutex
	started map[string]struct{}
}

var _ core.Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		started: map[string]struct{}{},
		runsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "runs_started_total",
			Help:      "Number of evaluation runs started",
		}),
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "runs_finished_total",
			Help:      "Number of evaluation runs finished, by terminal status",
		}, []string{"status"}),
		runsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "runs_active",
			Help:      "Number of evaluation runs in progress",
		}),
		units: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "units_total",
			Help:      "Number of evaluated cases, by result status",
		}, []string{"status"}),
		unitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall-clock duration of evaluated cases",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		passRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "pass_rate",
			Help:      "Pass rate of the last completed run, by experiment",
		}, []string{"experiment"}),
	}
}

func (s *PrometheusSink) Name() string { return "prometheus" }

func (s *PrometheusSink) Init(context.Context, core.RunInfo) error { return nil }

func (s *PrometheusSink) Handle(_ context.Context, ev core.Event) error {
	switch ev.Type {
	case core.EventStarted:
		s.mu.Lock()
		s.started[ev.RunID] = struct{}{}
		s.mu.Unlock()
		s.runsStarted.Inc()
		s.runsActive.Inc()
	case core.EventProgress:
		if r := ev.Result; r != nil {
			s.units.WithLabelValues(string(r.Status)).Inc()
			s.unitDuration.Observe(r.Duration.Seconds())
		}
	case core.EventCompleted, core.EventFailed, core.EventCancelled:
		s.mu.Lock()
		_, wasStarted := s.started[ev.RunID]
		delete(s.started, ev.RunID)
		s.mu.Unlock()
		if wasStarted {
			s.runsActive.Dec()
		}
		s.runsFinished.WithLabelValues(string(ev.Status)).Inc()
		if ev.Type == core.EventCompleted && ev.Metrics != nil {
			name := ""
			if ev.Experiment != nil {
				name = ev.Experiment.Name
			}
			s.passRate.WithLabelValues(name).Set(ev.Metrics.PassRate)
		}
	}
	return nil
}
