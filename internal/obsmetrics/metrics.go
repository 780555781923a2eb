// Package obsmetrics exposes the process's Prometheus metrics: dispatcher
// queue depth, active workers, async job counts, and chunked-subscriber
// count.
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arangod",
		Subsystem: "dispatcher",
		Name:      "queue_depth",
		Help:      "Number of jobs currently queued, by queue name.",
	}, []string{"queue"})

	ActiveWorkers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arangod",
		Subsystem: "dispatcher",
		Name:      "active_workers",
		Help:      "Number of worker goroutines currently executing a job, by queue name.",
	}, []string{"queue"})

	QueueFullRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arangod",
		Subsystem: "dispatcher",
		Name:      "queue_full_rejections_total",
		Help:      "Number of jobs rejected because their queue was at capacity.",
	}, []string{"queue"})

	AsyncJobsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arangod",
		Subsystem: "asyncjob",
		Name:      "pending",
		Help:      "Number of async jobs that have not completed yet.",
	})

	AsyncJobsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arangod",
		Subsystem: "asyncjob",
		Name:      "evicted_total",
		Help:      "Number of async jobs evicted because the registry was at capacity.",
	})

	ChunkedSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arangod",
		Subsystem: "httpserver",
		Name:      "chunked_subscribers",
		Help:      "Number of comm tasks currently streaming a chunked response.",
	})

	WorkMonitorActiveThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arangod",
		Subsystem: "workmonitor",
		Name:      "active_threads",
		Help:      "Number of goroutines with a registered work-description stack.",
	})
)

// MustRegister registers every metric above on reg. Called once from
// cmd/arangod at startup; a registry is passed in rather than using
// prometheus.DefaultRegisterer directly so tests can use their own.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		QueueDepth,
		ActiveWorkers,
		QueueFullRejections,
		AsyncJobsPending,
		AsyncJobsEvicted,
		ChunkedSubscribers,
		WorkMonitorActiveThreads,
	)
}
