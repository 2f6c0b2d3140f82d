package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueSource provides the collector access to job queue state.
type QueueSource interface {
	Pending() int
	ActiveJobs() int64
}

// SubscriberSource reports live event subscribers.
type SubscriberSource interface {
	SubscriberCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	queue QueueSource
	subs  SubscriberSource

	pendingJobs *prometheus.Desc
	activeJobs  *prometheus.Desc
	subscribers *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either source may be nil (metrics will report 0).
func NewCollector(queue QueueSource, subs SubscriberSource) *Collector {
	return &Collector{
		queue: queue,
		subs:  subs,
		pendingJobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "pending_jobs"),
			"Jobs waiting for a worker.",
			nil, nil,
		),
		activeJobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "active_jobs"),
			"Jobs currently being transcoded or transcribed.",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "event_subscribers_active"),
			"Current number of live event subscribers.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pendingJobs
	ch <- c.activeJobs
	ch <- c.subscribers
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var pending, active, subs float64
	if c.queue != nil {
		pending = float64(c.queue.Pending())
		active = float64(c.queue.ActiveJobs())
	}
	if c.subs != nil {
		subs = float64(c.subs.SubscriberCount())
	}
	ch <- prometheus.MustNewConstMetric(c.pendingJobs, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.activeJobs, prometheus.GaugeValue, active)
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, subs)
}
