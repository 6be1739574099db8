package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveStats gives the collector access to gauges that only make sense read
// live at scrape time (current subscriber count, current queue depth)
// rather than as monotonic counters — mirrors the original IngestStats
// interface's shape, retargeted from DB pool stats to hub/recorder state.
type LiveStats interface {
	SubscriberCount() int
	RecorderQueueDepth() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats LiveStats

	subscribers   *prometheus.Desc
	recorderDepth *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// stats may be nil before the hub/recorder are constructed; it then reports 0.
func NewCollector(stats LiveStats) *Collector {
	return &Collector{
		stats: stats,
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "ws_subscribers_active"),
			"Current number of connected WebSocket subscribers.",
			nil, nil,
		),
		recorderDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "recorder", "queue_depth"),
			"Current number of buffered lines awaiting the recorder consumer.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscribers
	ch <- c.recorderDepth
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.recorderDepth, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(c.stats.SubscriberCount()))
	ch <- prometheus.MustNewConstMetric(c.recorderDepth, prometheus.GaugeValue, float64(c.stats.RecorderQueueDepth()))
}
