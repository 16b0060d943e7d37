package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/loadshift/loadshift/core/metrics"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	evaluations    *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	slotIntensity  prometheus.Gauge
	worstIntensity prometheus.Gauge
	runs           prometheus.Counter
	saving         prometheus.Gauge
}

// NewPromSink registers scheduling metrics on the default Prometheus
// registerer. The Prometheus server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_evaluations_total",
		Help: "Total number of scheduling cycles",
	}, []string{"source", "run_now"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forecast_fetch_total",
		Help: "Total number of upstream forecast fetches",
	}, []string{"source", "success"})
	slotIntensity := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_slot_intensity_gco2_kwh",
		Help: "Intensity of the currently chosen slot",
	})
	worstIntensity := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_worst_intensity_gco2_kwh",
		Help: "Worst forecast intensity seen up to the deadline",
	})
	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_task_runs_total",
		Help: "Total number of task executions",
	})
	saving := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_saving_percent",
		Help: "Carbon saving of the last run relative to the worst case",
	})

	collectors := []prometheus.Collector{evaluations, fetches, slotIntensity, worstIntensity, runs, saving}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}

	return &PromSink{
		evaluations:    collectors[0].(*prometheus.CounterVec),
		fetches:        collectors[1].(*prometheus.CounterVec),
		slotIntensity:  collectors[2].(prometheus.Gauge),
		worstIntensity: collectors[3].(prometheus.Gauge),
		runs:           collectors[4].(prometheus.Counter),
		saving:         collectors[5].(prometheus.Gauge),
	}, nil
}

// RecordEvaluation increments the cycle counter and updates the intensity
// gauges.
func (s *PromSink) RecordEvaluation(ev coremetrics.EvaluationEvent) error {
	s.evaluations.WithLabelValues(ev.Source, strconv.FormatBool(ev.RunNow)).Inc()
	s.slotIntensity.Set(float64(ev.SlotIntensity))
	s.worstIntensity.Set(float64(ev.WorstIntensity))
	return nil
}

// RecordRun counts the execution and records the achieved saving.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.Inc()
	s.saving.Set(float64(ev.SavingPercent))
	return nil
}

// RecordFetch counts one upstream fetch outcome.
func (s *PromSink) RecordFetch(ev coremetrics.FetchEvent) error {
	s.fetches.WithLabelValues(ev.Source, strconv.FormatBool(ev.Success)).Inc()
	return nil
}
