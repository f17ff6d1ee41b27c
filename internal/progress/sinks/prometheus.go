package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/typetrace/fontinspector/internal/progress"
)

// PrometheusSink exports inspection progress metrics via Prometheus. It owns
// all collectors for inspections started/completed/running and per-site fetch
// counters.
type PrometheusSink struct {
	inspectionsStarted   prometheus.Counter
	inspectionsCompleted *prometheus.CounterVec
	inspectionsRunning   prometheus.Gauge
	inspectionRuntime    *prometheus.HistogramVec

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *inspectionTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		inspectionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inspector_inspections_started_total",
			Help: "Total inspections that have started.",
		}),
		inspectionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_inspections_completed_total",
			Help: "Total inspections completed partitioned by result.",
		}, []string{"result"}),
		inspectionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspector_inspections_running",
			Help: "Current number of running inspections.",
		}),
		inspectionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspector_inspection_runtime_seconds",
			Help:    "Wall time per completed inspection.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_fetch_requests_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspector_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "status_class"}),
		tracker: newInspectionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.inspectionsStarted,
		s.inspectionsCompleted,
		s.inspectionsRunning,
		s.inspectionRuntime,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageInspectStart, progress.StageInspectDone, progress.StageInspectError:
		s.handleInspectionEvent(evt)
	case progress.StageFetchDone:
		s.handleFetchEvent(evt)
	}
}

func (s *PrometheusSink) handleInspectionEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageInspectStart:
		s.inspectionsStarted.Inc()
		if s.tracker.start(evt.InspectionID) {
			s.inspectionsRunning.Inc()
		}
	case progress.StageInspectDone:
		s.inspectionsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageInspectError:
		s.inspectionsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageInspectStart && s.tracker.complete(evt.InspectionID) {
		s.inspectionsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.inspectionRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(site, statusClass).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type inspectionTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newInspectionTracker() *inspectionTracker {
	return &inspectionTracker{running: make(map[[16]byte]struct{})}
}

func (t *inspectionTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *inspectionTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
