package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"floorvault/core/events"
)

type eventMetrics struct {
	committed *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed market events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Count of committed market events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.committed)
	})
	return eventRegistry
}

// Emit counts a committed event. It satisfies events.Emitter so the registry
// can sit directly behind the state manager's sink.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.committed.WithLabelValues(labelOr(strings.ToLower(evt.EventType()), "unknown")).Inc()
}
