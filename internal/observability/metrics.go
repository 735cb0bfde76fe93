// Package observability provides Prometheus metrics instrumentation and
// OpenTelemetry tracing for the server core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// LOG METRICS
// =============================================================================

var (
	logRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traintastic_log_records_total",
			Help: "Total number of log records emitted, by severity letter",
		},
		[]string{"severity"}, // D, I, N, W, C, F
	)
)

// =============================================================================
// SESSION METRICS
// =============================================================================

var (
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "traintastic_sessions_active",
			Help: "Client sessions currently connected",
		},
	)

	sessionHandlesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "traintastic_session_handles_active",
			Help: "Object and table-model handles currently held across all sessions",
		},
	)

	sessionCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traintastic_session_commands_total",
			Help: "Total session commands dispatched",
		},
		[]string{"command", "status"}, // status: ok, error
	)

	sessionCommandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traintastic_session_command_duration_seconds",
			Help:    "Session command dispatch duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"command"},
	)
)

// =============================================================================
// PROTOCOL KERNEL METRICS
// =============================================================================

var (
	kernelFramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traintastic_kernel_frames_sent_total",
			Help: "Frames drained from a protocol kernel's send queue",
		},
		[]string{"kernel", "priority"}, // priority: low, normal, high
	)

	kernelRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traintastic_kernel_retries_total",
			Help: "Response-timeout retries performed by a protocol kernel",
		},
		[]string{"kernel"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordLogRecord records one emitted log record.
// Called from the log registry's fan-out path.
func RecordLogRecord(severity string) {
	logRecordsTotal.WithLabelValues(severity).Inc()
}

// SessionOpened / SessionClosed track the active-session gauge.
func SessionOpened() { sessionsActive.Inc() }
func SessionClosed() { sessionsActive.Dec() }

// HandleAllocated / HandleReleased track the cross-session handle gauge.
func HandleAllocated() { sessionHandlesActive.Inc() }
func HandleReleased() { sessionHandlesActive.Dec() }

// RecordSessionCommand records one dispatched session command.
// This should be called after dispatch completes.
func RecordSessionCommand(command string, status string, durationMS int) {
	sessionCommandsTotal.WithLabelValues(command, status).Inc()
	sessionCommandDurationSeconds.WithLabelValues(command).Observe(float64(durationMS) / 1000.0)
}

// RecordKernelFrameSent records one frame leaving a kernel's send queue.
func RecordKernelFrameSent(kernel string, priority string) {
	kernelFramesSentTotal.WithLabelValues(kernel, priority).Inc()
}

// RecordKernelRetry records one response-timeout retry.
func RecordKernelRetry(kernel string) {
	kernelRetriesTotal.WithLabelValues(kernel).Inc()
}
