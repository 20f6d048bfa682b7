package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClientMetrics(t *testing.T) {
	m := NewClientMetrics(prometheus.NewRegistry())

	m.EventReceived("message")
	m.EventReceived("message")
	m.EventIgnored("whatever")
	m.EventIgnored("else")
	m.PrefixesInvalidated("message", 4)
	m.StateChanged("connected")
	m.ConnectionOpened()

	if got := testutil.ToFloat64(m.EventsReceived.WithLabelValues("message")); got != 2 {
		t.Fatalf("Expected 2 received, got %v", got)
	}
	if got := testutil.ToFloat64(m.EventsIgnored.WithLabelValues("unknown")); got != 2 {
		t.Fatalf("Expected 2 ignored under one label, got %v", got)
	}
	if got := testutil.ToFloat64(m.Invalidations.WithLabelValues("message")); got != 4 {
		t.Fatalf("Expected 4 invalidations, got %v", got)
	}
	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("connected")); got != 1 {
		t.Fatalf("Expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.Connections); got != 1 {
		t.Fatalf("Expected 1 connection, got %v", got)
	}
}

func TestServerMetrics(t *testing.T) {
	m := NewServerMetrics(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.HandshakeFailed()
	m.FrameDelivered("message")
	m.FrameDropped("message")

	if got := testutil.ToFloat64(m.ConnectionsActive); got != 1 {
		t.Fatalf("Expected 1 active, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsTotal); got != 2 {
		t.Fatalf("Expected 2 total, got %v", got)
	}
	if got := testutil.ToFloat64(m.HandshakeFailures); got != 1 {
		t.Fatalf("Expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDelivered.WithLabelValues("message")); got != 1 {
		t.Fatalf("Expected 1 delivered, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped.WithLabelValues("message")); got != 1 {
		t.Fatalf("Expected 1 dropped, got %v", got)
	}
}

func TestRegisteringTwiceOnOneRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewClientMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("Expected duplicate registration to panic")
		}
	}()
	NewClientMetrics(reg)
}

func TestNoOpMetricsSatisfyInterfaces(t *testing.T) {
	var c ClientMetrics = NoOpClientMetrics{}
	var s ServerMetrics = NoOpServerMetrics{}

	c.EventReceived("message")
	c.PrefixesInvalidated("message", 1)
	s.FrameDropped("message")
}
