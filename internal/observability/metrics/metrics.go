package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the booking flow.
type ConversationMetrics struct {
	inboundTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	spamTotal        prometheus.Counter
	rateLimitedTotal prometheus.Counter
	webhookLatency   *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "inbound_messages_total",
			Help:      "Inbound WhatsApp messages by handling status",
		}, []string{"status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "step_transitions_total",
			Help:      "Conversation step transitions",
		}, []string{"from", "to"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "extraction_retries_total",
			Help:      "Messages that did not yield the value the step asked for",
		}, []string{"step"}),
		spamTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "conversation",
			Name:      "spam_declined_total",
			Help:      "Conversations declined by triage",
		}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whatsapp",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whatsapp",
			Subsystem: "http",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of GHL webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.transitionsTotal,
		m.bookingsTotal,
		m.retriesTotal,
		m.spamTotal,
		m.rateLimitedTotal,
		m.webhookLatency,
	)
	return m
}

func (m *ConversationMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveBooking records a Finalizer outcome: booked or failed.
func (m *ConversationMetrics) ObserveBooking(success bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "booked"
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveRetry(step string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(step).Inc()
}

func (m *ConversationMetrics) ObserveSpam() {
	if m == nil {
		return
	}
	m.spamTotal.Inc()
}

func (m *ConversationMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

func (m *ConversationMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}
