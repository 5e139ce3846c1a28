package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	CommandsScheduled = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_commands_scheduled_total", Help: "Total CommandScheduled events accepted"})
	CommandsElided    = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_commands_elided_total", Help: "Commands delivered immediately without a persistent row"})
	CommandsApplied   = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_commands_applied_total", Help: "Commands successfully applied"})
	CommandsRetried   = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_commands_retried_total", Help: "Delivery attempts that rescheduled"})
	CommandsAbandoned = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_commands_abandoned_total", Help: "Commands permanently abandoned"})
	AdmissionRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_admission_rejects_total", Help: "Schedule calls rejected by the admission limiter"})
	ClockAdvances     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "scheduler_clock_advances_total", Help: "Clock advancement calls"}, []string{"clock"})
	DueQueueDepth     = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "scheduler_due_queue_depth", Help: "Pending commands due on a clock at last observation"}, []string{"clock"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CommandsScheduled,
			CommandsElided,
			CommandsApplied,
			CommandsRetried,
			CommandsAbandoned,
			AdmissionRejects,
			ClockAdvances,
			DueQueueDepth,
		)
	})
	return promhttp.Handler()
}
