package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sizewatch/internal/progress"
)

// PrometheusSink turns monitor events into sizewatch_* collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	running       prometheus.Gauge
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	itemsChecked  *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	alerts        *prometheus.CounterVec
	sessionErrors prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sizewatch_runs_started_total",
			Help: "Monitoring runs started.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sizewatch_running",
			Help: "1 while a monitoring run is active.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sizewatch_cycles_total",
			Help: "Completed scan cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sizewatch_cycle_duration_seconds",
			Help:    "Wall time of one pass over the watch-list.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		itemsChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sizewatch_items_checked_total",
			Help: "Item checks partitioned by store and result.",
		}, []string{"store", "result"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sizewatch_item_duration_seconds",
			Help:    "Navigate plus extract time per item.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
		}, []string{"store"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sizewatch_alerts_total",
			Help: "Stock alerts raised, by store.",
		}, []string{"store"}),
		sessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sizewatch_session_errors_total",
			Help: "Rendering sessions that failed to start.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.running,
		s.cycles,
		s.cycleDuration,
		s.itemsChecked,
		s.itemDuration,
		s.alerts,
		s.sessionErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.running.Set(1)
	case progress.StageRunStop:
		s.running.Set(0)
	case progress.StageCycleDone:
		s.cycles.Inc()
		if evt.Dur > 0 {
			s.cycleDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageItemChecked:
		store := labelOrUnknown(evt.Store)
		s.itemsChecked.WithLabelValues(store, labelOrUnknown(evt.Result)).Inc()
		if evt.Dur > 0 {
			s.itemDuration.WithLabelValues(store).Observe(evt.Dur.Seconds())
		}
	case progress.StageAlert:
		s.alerts.WithLabelValues(labelOrUnknown(evt.Store)).Inc()
	case progress.StageSessionError:
		s.sessionErrors.Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
