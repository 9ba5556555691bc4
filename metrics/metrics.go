package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultRefused = "refused"

	PathMetrics = "/metrics"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlreview_transitions_total",
			Help: "Total number of workflow transitions attempted",
		},
		[]string{"operation", "result"},
	)

	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlreview_tasks_total",
			Help: "Total number of dispatched tasks by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlreview_dispatch_queue_depth",
			Help: "Number of tasks waiting in the dispatch queue",
		},
	)
)

// ObserveTransition records the outcome of a workflow transition.
func ObserveTransition(operation string, err error, guarded bool) {
	switch {
	case err == nil:
		Transitions.WithLabelValues(operation, ResultSuccess).Inc()
	case guarded:
		Transitions.WithLabelValues(operation, ResultRefused).Inc()
	default:
		Transitions.WithLabelValues(operation, ResultFailure).Inc()
	}
}

func ObserveTask(kind string, err error) {
	if err != nil {
		Tasks.WithLabelValues(kind, ResultFailure).Inc()
		return
	}
	Tasks.WithLabelValues(kind, ResultSuccess).Inc()
}

func RegisterMetricsAPI(r *gin.Engine) {
	r.GET(PathMetrics, gin.WrapH(promhttp.Handler()))
}
