package core

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "viewdb"
	metricsSubsystem = "aggregate"

	// Counter: input records received by a node.
	MetricRecordsIn = "records_in_total"
	// Counter: output records emitted by a node.
	MetricRecordsOut = "records_out_total"
	// Counter: distinct groups touched by successful batches.
	MetricGroupsTouched = "groups_touched_total"
	// Counter: failed batches, by error class.
	MetricBatchErrors = "batch_errors_total"
	// Histogram: time to process and persist one batch.
	MetricProcessDuration = "process_duration_seconds"
)

type Metrics struct {
	recordsIn       *prometheus.CounterVec
	recordsOut      *prometheus.CounterVec
	groupsTouched   *prometheus.CounterVec
	batchErrors     *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
}

// NewMetrics registers the aggregate metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	labels := []string{"node", "function"}
	metrics := &Metrics{
		recordsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      MetricRecordsIn,
			Help:      "Input records received by aggregate nodes.",
		}, labels),
		recordsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      MetricRecordsOut,
			Help:      "Output records emitted by aggregate nodes.",
		}, labels),
		groupsTouched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      MetricGroupsTouched,
			Help:      "Groups whose output row changed.",
		}, labels),
		batchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      MetricBatchErrors,
			Help:      "Batches rejected by aggregate nodes.",
		}, append(labels, "class")),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      MetricProcessDuration,
			Help:      "Time to process and persist one batch.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, labels),
	}
	if reg == nil {
		return metrics, nil
	}
	for _, c := range []prometheus.Collector{
		metrics.recordsIn,
		metrics.recordsOut,
		metrics.groupsTouched,
		metrics.batchErrors,
		metrics.processDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

// nodeMetrics are the metric children of one node.
type nodeMetrics struct {
	metrics    *Metrics
	recordsIn  prometheus.Counter
	recordsOut prometheus.Counter
	groups     prometheus.Counter
	duration   prometheus.Observer
	labels     prometheus.Labels
}

func (metrics *Metrics) forNode(nodeID int64, agg Aggregation) *nodeMetrics {
	labels := prometheus.Labels{"node": strconv.FormatInt(nodeID, 10), "function": agg.String()}
	return &nodeMetrics{
		metrics:    metrics,
		recordsIn:  metrics.recordsIn.With(labels),
		recordsOut: metrics.recordsOut.With(labels),
		groups:     metrics.groupsTouched.With(labels),
		duration:   metrics.processDuration.With(labels),
		labels:     labels,
	}
}

// startTimer returns a func that records the elapsed time when called.
func (nm *nodeMetrics) startTimer() func() {
	start := time.Now()
	return func() {
		nm.duration.Observe(time.Since(start).Seconds())
	}
}

func (nm *nodeMetrics) batchFailed(err error) {
	nm.metrics.batchErrors.With(prometheus.Labels{
		"node":     nm.labels["node"],
		"function": nm.labels["function"],
		"class":    errorClass(err),
	}).Inc()
}

func (nm *nodeMetrics) delete() {
	nm.metrics.recordsIn.Delete(nm.labels)
	nm.metrics.recordsOut.Delete(nm.labels)
	nm.metrics.groupsTouched.Delete(nm.labels)
	nm.metrics.processDuration.Delete(nm.labels)
	nm.metrics.batchErrors.DeletePartialMatch(nm.labels)
}
