// Package metrics records batch outcomes as Prometheus metrics. A batch is a
// short-lived process, so the registry is pushed to a Pushgateway at the end
// of a run instead of being scraped.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder is what the batch runner reports to.
type Recorder interface {
	RecordItem(result string, kind string, duration time.Duration)
	RecordEscalation(kind string)
	RecordReport(rows int)
}

type Collector struct {
	items       *prometheus.CounterVec
	escalations *prometheus.CounterVec
	itemLatency prometheus.Histogram
	reportRows  prometheus.Gauge
	reportsSent prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_items_total",
			Help: "Processed queue items by result and failure kind.",
		}, []string{"result", "kind"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Runs stopped by an unrecoverable item.",
		}, []string{"kind"}),
		itemLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_item_duration_seconds",
			Help:    "Time spent on one queue item in the clinic application.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		reportRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triage_report_rows",
			Help: "Data rows in the last manual list report sent.",
		}),
		reportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_reports_sent_total",
			Help: "Manual list reports sent.",
		}),
	}

	reg.MustRegister(
		c.items,
		c.escalations,
		c.itemLatency,
		c.reportRows,
		c.reportsSent,
	)
	return c
}

func (c *Collector) RecordItem(result string, kind string, duration time.Duration) {
	c.items.WithLabelValues(result, kind).Inc()
	c.itemLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordEscalation(kind string) {
	c.escalations.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordReport(rows int) {
	c.reportRows.Set(float64(rows))
	c.reportsSent.Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordItem(string, string, time.Duration) {}
func (Nop) RecordEscalation(string)                  {}
func (Nop) RecordReport(int)                         {}

// Push sends the gathered metrics to a Pushgateway under job. An empty url
// disables pushing.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(gatherer).PushContext(ctx)
}
