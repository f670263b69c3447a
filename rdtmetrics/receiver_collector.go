package rdtmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jasonyux/tcp-over-udp/receiver"
)

// ReceiverCollector implements prometheus.Collector over a live
// receiver.Receiver.
type ReceiverCollector struct {
	src     *receiver.Receiver
	session string

	ackNum      *prometheus.Desc
	delivered   *prometheus.Desc
	reorderSize *prometheus.Desc
	dropped     *prometheus.Desc
}

// NewReceiverCollector builds a collector over r, labeling every series with
// the given session correlation ID.
func NewReceiverCollector(r *receiver.Receiver, session string) *ReceiverCollector {
	labels := []string{"session"}
	return &ReceiverCollector{
		src:     r,
		session: session,
		ackNum: prometheus.NewDesc("rdt_receiver_ack_num_bytes",
			"Next in-order byte expected from the peer.", labels, nil),
		delivered: prometheus.NewDesc("rdt_receiver_delivered_bytes",
			"Offset just past the last byte written to the sink so far.", labels, nil),
		reorderSize: prometheus.NewDesc("rdt_receiver_reorder_set_size",
			"Segments held pending a gap fill for cumulative-ACK computation.", labels, nil),
		dropped: prometheus.NewDesc("rdt_receiver_segments_dropped_total",
			"Inbound segments discarded without being delivered.", []string{"session", "reason"}, nil),
	}
}

func (c *ReceiverCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ackNum
	ch <- c.delivered
	ch <- c.reorderSize
	ch <- c.dropped
}

func (c *ReceiverCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.ackNum, prometheus.GaugeValue, float64(c.src.AckNum()), c.session)
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.GaugeValue, float64(c.src.DeliveredUpTo()), c.session)
	ch <- prometheus.MustNewConstMetric(c.reorderSize, prometheus.GaugeValue, float64(c.src.ReorderLen()), c.session)
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.src.DroppedStale()), c.session, "stale")
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.src.DroppedDuplicate()), c.session, "duplicate")
}
