// Package metrics exposes Prometheus instrumentation for the pipeline
// controller. Collectors register on the default registry, so a host that
// serves promhttp.Handler() publishes them without further wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts controller commands by name and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipelinectl_commands_total",
		Help: "Total number of controller commands by command and result",
	}, []string{"command", "result"})

	// TransitionDuration tracks how long state transitions take, including
	// the asynchronous wait.
	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipelinectl_transition_duration_seconds",
		Help:    "Time taken for a pipeline state transition to resolve",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"operation", "result"})

	// BuildFailuresTotal counts failed builds by error taxonomy name.
	BuildFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipelinectl_build_failures_total",
		Help: "Total number of failed pipeline builds by reason",
	}, []string{"reason"})

	// BusMessagesTotal counts drained bus messages by type and error category.
	BusMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipelinectl_bus_messages_total",
		Help: "Total number of drained bus messages by type and category",
	}, []string{"type", "category"})

	// FramesDelivered counts frames handed to the frame bridge.
	FramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipelinectl_frames_delivered_total",
		Help: "Total number of frames delivered by the frame sink",
	})

	// FramesReplaced counts frames evicted before being copied out.
	FramesReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipelinectl_frames_replaced_total",
		Help: "Total number of frames replaced before consumption",
	})

	// FrameCopies counts successful copy-outs of a fresh frame.
	FrameCopies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipelinectl_frame_copies_total",
		Help: "Total number of frames copied into the host buffer",
	})

	// PipelineState reports the current state of the active pipeline
	// (1 = NULL or none, 2 = READY, 3 = PAUSED, 4 = PLAYING).
	PipelineState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipelinectl_pipeline_state",
		Help: "Current state of the active pipeline",
	})
)

// IncCommand records a command outcome.
func IncCommand(command string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	CommandsTotal.WithLabelValues(command, result).Inc()
}

// ObserveTransition records the duration of a resolved transition.
func ObserveTransition(operation, result string, duration time.Duration) {
	TransitionDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// IncBuildFailure records a failed build.
func IncBuildFailure(reason string) {
	BuildFailuresTotal.WithLabelValues(reason).Inc()
}

// IncBusMessage records a drained bus message.
func IncBusMessage(msgType, category string) {
	BusMessagesTotal.WithLabelValues(msgType, category).Inc()
}

// SetPipelineState records the state of the active pipeline.
func SetPipelineState(state int) {
	PipelineState.Set(float64(state))
}
