package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports pipeline health as Prometheus metrics
type Recorder struct {
	attempts   *prometheus.CounterVec
	indicator  *prometheus.GaugeVec
	stage      *prometheus.HistogramVec
	signals    prometheus.Gauge
	lastCycle  prometheus.Gauge
	cycleFails *prometheus.CounterVec
}

// New registers the pipeline metrics with reg (nil = default registerer)
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "globallink_provider_attempts_total",
				Help: "Provider attempts by role, provider and outcome",
			},
			[]string{"kind", "provider", "outcome"},
		),
		indicator: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "globallink_indicator_status",
				Help: "1 if the indicator was acquired in the last cycle, 0 if its chain was exhausted",
			},
			[]string{"key"},
		),
		stage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "globallink_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		signals: factory.NewGauge(prometheus.GaugeOpts{
			Name: "globallink_technical_signals",
			Help: "Instruments with a defined technical signal in the last matrix",
		}),
		lastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Name: "globallink_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		}),
		cycleFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "globallink_stage_failures_total",
				Help: "Pipeline stages aborted by an error",
			},
			[]string{"stage"},
		),
	}
}

// ProviderAttempt counts one provider call
func (r *Recorder) ProviderAttempt(kind, provider, outcome string) {
	r.attempts.WithLabelValues(kind, provider, outcome).Inc()
}

// IndicatorStatus sets the acquisition status gauge of key
func (r *Recorder) IndicatorStatus(key string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	r.indicator.WithLabelValues(key).Set(v)
}

// StageDuration observes how long a stage took
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	r.stage.WithLabelValues(stage).Observe(d.Seconds())
}

// StageFailed counts an aborted stage
func (r *Recorder) StageFailed(stage string) {
	r.cycleFails.WithLabelValues(stage).Inc()
}

// TechnicalSignals sets the number of instruments in the technical matrix
func (r *Recorder) TechnicalSignals(n int) {
	r.signals.Set(float64(n))
}

// CycleCompleted stamps the end of a full cycle
func (r *Recorder) CycleCompleted(at time.Time) {
	r.lastCycle.Set(float64(at.Unix()))
}
