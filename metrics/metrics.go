// Package metrics exposes rabbitrpc server observations as Prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rabbitrpc"

// Collector implements rabbitrpc.MetricsRecorder
type Collector struct {
	messages        *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	replies         prometheus.Counter
	handlerDuration prometheus.Histogram
	consuming       prometheus.Gauge
}

// NewCollector creates the collectors and registers them on reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Deliveries processed, by outcome.",
			},
			[]string{"outcome"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Per-message failures, by processing stage.",
			},
			[]string{"stage"},
		),
		replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies published.",
		}),
		handlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time from delivery to acknowledgement.",
			Buckets:   prometheus.DefBuckets,
		}),
		consuming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_running",
			Help:      "1 while the consumer is registered.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.messages, c.stageFailures, c.replies, c.handlerDuration, c.consuming,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// MessageProcessed counts a delivery and observes its processing time
func (c *Collector) MessageProcessed(outcome string, duration time.Duration) {
	c.messages.WithLabelValues(outcome).Inc()
	c.handlerDuration.Observe(duration.Seconds())
}

// StageFailed counts a failure in stage
func (c *Collector) StageFailed(stage string) {
	c.stageFailures.WithLabelValues(stage).Inc()
}

// ReplyPublished counts a published reply
func (c *Collector) ReplyPublished() {
	c.replies.Inc()
}

// ConsumerRunning sets the consumer gauge
func (c *Collector) ConsumerRunning(running bool) {
	if running {
		c.consuming.Set(1)
		return
	}
	c.consuming.Set(0)
}
