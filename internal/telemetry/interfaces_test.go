package telemetry

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})

	t.Run("exposes standard logger", func(t *testing.T) {
		base := log.New(&bytes.Buffer{}, "", 0)
		provider, ok := WrapLogger(base).(interface{ StandardLogger() *log.Logger })
		if !ok || provider.StandardLogger() != base {
			t.Fatalf("expected wrapped logger to expose the base logger")
		}
	})
}

func TestMetricsRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.Ingest("session_start", OutcomeAccepted)
	metrics.Ingest("session_start", OutcomeAccepted)
	metrics.Ingest("", OutcomeInvalid)
	metrics.Broadcast("session_start")
	metrics.SetSubscribers(3)
	metrics.SubscriberDropped("slow")
	metrics.SetRecentEvents(7)

	expected := `
# HELP gateway_ingest_total Ingestion calls by event type and outcome.
# TYPE gateway_ingest_total counter
gateway_ingest_total{outcome="accepted",type="session_start"} 2
gateway_ingest_total{outcome="invalid",type="unknown"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "gateway_ingest_total"); err != nil {
		t.Fatalf("unexpected ingest metrics: %v", err)
	}
	if got := testutil.ToFloat64(metrics.subscribers); got != 3 {
		t.Fatalf("expected 3 subscribers, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.recentEvents); got != 7 {
		t.Fatalf("expected 7 recent events, got %v", got)
	}
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewMetrics(registry)
	second := NewMetrics(registry)

	first.Broadcast("station_status")
	second.Broadcast("station_status")

	if got := testutil.ToFloat64(first.broadcastTotal.WithLabelValues("station_status")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.Ingest("x", OutcomeError)
	metrics.Broadcast("x")
	metrics.SetSubscribers(1)
	metrics.SubscriberDropped("x")
	metrics.SetRecentEvents(1)
}
