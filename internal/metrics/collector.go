package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineStats provides the collector access to live orchestrator state.
type PipelineStats interface {
	InFlight() int64
}

// LimiterStats exposes the remaining rate-limit admissions per stage.
// Uncapped stages report -1 and are skipped at scrape time.
type LimiterStats interface {
	RemainingByStage() map[string]int
}

// QueueStats exposes the asynchronous worker queue depth.
type QueueStats interface {
	QueueDepth() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pipeline PipelineStats
	limiter  LimiterStats
	queue    QueueStats

	// Descriptors for scrape-time gauges.
	inflight      *prometheus.Desc
	rateRemaining *prometheus.Desc
	queueDepth    *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; the matching gauges then report 0 or are
// omitted.
func NewCollector(pipeline PipelineStats, limiter LimiterStats, queue QueueStats) *Collector {
	return &Collector{
		pipeline: pipeline,
		limiter:  limiter,
		queue:    queue,
		inflight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pipeline_inflight"),
			"Current number of in-progress pipeline requests.",
			nil, nil,
		),
		rateRemaining: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "rate_limit_remaining"),
			"Admissions left in the current rate-limit window, per stage.",
			[]string{"stage"}, nil,
		),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "ingest_queue_depth"),
			"Jobs waiting in the worker queue.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inflight
	ch <- c.rateRemaining
	ch <- c.queueDepth
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.pipeline != nil {
		ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(c.pipeline.InFlight()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, 0)
	}

	if c.limiter != nil {
		for stage, remaining := range c.limiter.RemainingByStage() {
			if remaining < 0 {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.rateRemaining, prometheus.GaugeValue, float64(remaining), stage)
		}
	}

	if c.queue != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.queue.QueueDepth()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, 0)
	}
}
