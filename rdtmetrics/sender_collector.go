// Package rdtmetrics exposes sender.Sender and receiver.Receiver state as
// Prometheus gauges/counters, following the collector-wraps-live-state
// pattern used for kernel tcp_info exporters: Describe/Collect read straight
// off the live struct rather than caching snapshots.
package rdtmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jasonyux/tcp-over-udp/sender"
)

// SenderCollector implements prometheus.Collector over a live sender.Sender.
type SenderCollector struct {
	src     *sender.Sender
	session string

	sendBase    *prometheus.Desc
	seqNum      *prometheus.Desc
	windowLen   *prometheus.Desc
	retransmits *prometheus.Desc
	rto         *prometheus.Desc
}

// NewSenderCollector builds a collector over s, labeling every series with
// the given session correlation ID.
func NewSenderCollector(s *sender.Sender, session string) *SenderCollector {
	labels := []string{"session"}
	return &SenderCollector{
		src:     s,
		session: session,
		sendBase: prometheus.NewDesc("rdt_sender_send_base_bytes",
			"Smallest unacknowledged seq_num.", labels, nil),
		seqNum: prometheus.NewDesc("rdt_sender_seq_num_bytes",
			"Next seq_num to be assigned to outgoing data.", labels, nil),
		windowLen: prometheus.NewDesc("rdt_sender_window_segments",
			"Number of in-flight segments awaiting acknowledgment.", labels, nil),
		retransmits: prometheus.NewDesc("rdt_sender_retransmits_total",
			"Segments resent on retransmission-timer expiry.", labels, nil),
		rto: prometheus.NewDesc("rdt_sender_rto_seconds",
			"Current retransmission timeout.", labels, nil),
	}
}

func (c *SenderCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sendBase
	ch <- c.seqNum
	ch <- c.windowLen
	ch <- c.retransmits
	ch <- c.rto
}

func (c *SenderCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.sendBase, prometheus.GaugeValue, float64(c.src.SendBase()), c.session)
	ch <- prometheus.MustNewConstMetric(c.seqNum, prometheus.GaugeValue, float64(c.src.SeqNum()), c.session)
	ch <- prometheus.MustNewConstMetric(c.windowLen, prometheus.GaugeValue, float64(c.src.WindowLen()), c.session)
	ch <- prometheus.MustNewConstMetric(c.retransmits, prometheus.CounterValue, float64(c.src.RetransmitCount()), c.session)
	ch <- prometheus.MustNewConstMetric(c.rto, prometheus.GaugeValue, c.src.CurrentRTO().Seconds(), c.session)
}
