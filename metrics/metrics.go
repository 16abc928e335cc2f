// Package metrics exposes a scheduler.Scheduler and a hylink.Parser as a
// single prometheus.Collector: the Go analogue of a board's debug UART
// status dump (SPEC_FULL.md §6 "Observability"), turned into an
// actually-scrapable surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
	"github.com/Nowaterisenough/EmbeddedTemplate/scheduler"
)

// Collector wraps a Scheduler and a Parser and implements
// prometheus.Collector over both.
type Collector struct {
	sched *scheduler.Scheduler
	link  *hylink.Parser

	tick         *prometheus.Desc
	taskCount    *prometheus.Desc
	taskState    *prometheus.Desc
	linkPackets  *prometheus.Desc
	linkHdrErr   *prometheus.Desc
	linkCRCErr   *prometheus.Desc
}

// NewCollector builds a Collector over sched and link. Either may be nil,
// in which case its metrics are simply not emitted.
func NewCollector(sched *scheduler.Scheduler, link *hylink.Parser) *Collector {
	return &Collector{
		sched: sched,
		link:  link,
		tick: prometheus.NewDesc(
			"fw_scheduler_tick_total", "Current scheduler tick count.", nil, nil),
		taskCount: prometheus.NewDesc(
			"fw_scheduler_tasks", "Number of live tasks.", nil, nil),
		taskState: prometheus.NewDesc(
			"fw_scheduler_task_info", "One sample per live task.",
			[]string{"name", "state"}, nil),
		linkPackets: prometheus.NewDesc(
			"fw_hylink_packets_total", "Valid packets decoded.", nil, nil),
		linkHdrErr: prometheus.NewDesc(
			"fw_hylink_header_errors_total", "Frames rejected at header validation.", nil, nil),
		linkCRCErr: prometheus.NewDesc(
			"fw_hylink_crc_errors_total", "Frames rejected on body CRC mismatch.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tick
	ch <- c.taskCount
	ch <- c.taskState
	ch <- c.linkPackets
	ch <- c.linkHdrErr
	ch <- c.linkCRCErr
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.sched != nil {
		ch <- prometheus.MustNewConstMetric(c.tick, prometheus.CounterValue, float64(c.sched.GetTick()))

		snap := c.sched.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.taskCount, prometheus.GaugeValue, float64(len(snap)))
		for _, ti := range snap {
			ch <- prometheus.MustNewConstMetric(
				c.taskState, prometheus.GaugeValue, 1, ti.Name, ti.State.String())
		}
	}

	if c.link != nil {
		stats := c.link.Stats()
		ch <- prometheus.MustNewConstMetric(c.linkPackets, prometheus.CounterValue, float64(stats.TotalPackets))
		ch <- prometheus.MustNewConstMetric(c.linkHdrErr, prometheus.CounterValue, float64(stats.HeaderErrors))
		ch <- prometheus.MustNewConstMetric(c.linkCRCErr, prometheus.CounterValue, float64(stats.CRCErrors))
	}
}
