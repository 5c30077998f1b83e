package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for the WhatsApp flows.
type MessagingMetrics struct {
	inboundTotal     *prometheus.CounterVec
	processedTotal   *prometheus.CounterVec
	visitsScheduled  prometheus.Counter
	listingsSent     prometheus.Counter
	responseLatency  prometheus.Histogram
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sellsbroker",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WAHA webhooks",
		}, []string{"event_type", "status"}),
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sellsbroker",
			Subsystem: "messaging",
			Name:      "turns_processed_total",
			Help:      "Total buffered turns processed by the orchestrator",
		}, []string{"status"}),
		visitsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sellsbroker",
			Subsystem: "visits",
			Name:      "scheduled_total",
			Help:      "Total property visits booked",
		}),
		listingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sellsbroker",
			Subsystem: "listings",
			Name:      "sent_total",
			Help:      "Total listing cards sent to leads",
		}),
		responseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sellsbroker",
			Subsystem: "messaging",
			Name:      "turn_latency_seconds",
			Help:      "Latency of turn processing, humanized delay included",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.processedTotal, m.visitsScheduled, m.listingsSent, m.responseLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *MessagingMetrics) ObserveTurn(status string, seconds float64) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(status).Inc()
	m.responseLatency.Observe(seconds)
}

func (m *MessagingMetrics) VisitScheduled() {
	if m == nil {
		return
	}
	m.visitsScheduled.Inc()
}

func (m *MessagingMetrics) ListingsSent(n int) {
	if m == nil {
		return
	}
	m.listingsSent.Add(float64(n))
}
