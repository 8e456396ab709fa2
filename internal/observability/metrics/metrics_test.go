package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)

	m.ObserveInbound("processed")
	m.ObserveInbound("processed")
	m.ObserveInbound("held")
	m.ObserveTransition("greeting", "name")
	m.ObserveBooking(true)
	m.ObserveBooking(false)
	m.ObserveRetry("email")
	m.ObserveSpam()
	m.ObserveRateLimited()
	m.ObserveWebhookLatency("processed", 0.25)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("processed")); got != 2 {
		t.Fatalf("expected 2 processed messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("greeting", "name")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed booking, got %v", got)
	}
	if got := testutil.ToFloat64(m.spamTotal); got != 1 {
		t.Fatalf("expected 1 spam decline, got %v", got)
	}
	if got := testutil.CollectAndCount(m.webhookLatency); got != 1 {
		t.Fatalf("expected 1 latency series, got %d", got)
	}
}

func TestConversationMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewConversationMetrics(nil)
	m.ObserveRetry("name")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected metrics registered on the default registerer")
	}
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveInbound("processed")
	m.ObserveTransition("a", "b")
	m.ObserveBooking(true)
	m.ObserveRetry("name")
	m.ObserveSpam()
	m.ObserveRateLimited()
	m.ObserveWebhookLatency("processed", 0.1)
}
