// Package metrics exports Prometheus collectors for the batch executor,
// mirroring the teacher's preference for structured operational
// visibility over ad hoc logging for anything that needs to be graphed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExecutorCollector wraps the counters and histogram the executor
// reports through. Register it once per process with a prometheus.Registerer.
type ExecutorCollector struct {
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
	gasUsed    prometheus.Histogram
}

// NewExecutorCollector constructs and registers the executor's metrics
// against reg.
func NewExecutorCollector(reg prometheus.Registerer) *ExecutorCollector {
	c := &ExecutorCollector{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "batchswap",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Batch execution attempts, labeled by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "batchswap",
			Subsystem: "executor",
			Name:      "execution_duration_ms",
			Help:      "Wall-clock duration of a batch execution attempt, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
		}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "batchswap",
			Subsystem: "executor",
			Name:      "gas_used",
			Help:      "Gas used by a successful batch-execute transaction.",
			Buckets:   prometheus.ExponentialBuckets(50_000, 2, 10),
		}),
	}
	reg.MustRegister(c.executions, c.duration, c.gasUsed)
	return c
}

// Observe records one execution attempt's outcome, duration, and (for a
// success) gas used.
func (c *ExecutorCollector) Observe(success bool, durationMs int64, gasUsed uint64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.executions.WithLabelValues(outcome).Inc()
	c.duration.Observe(float64(durationMs))
	if success {
		c.gasUsed.Observe(float64(gasUsed))
	}
}
