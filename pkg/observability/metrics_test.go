package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.MessagesRelayed.Inc()
	m.MessagesDropped.WithLabelValues(DropNoRoute).Inc()
	m.UpdateTopology(3, 5)

	if got := testutil.ToFloat64(m.MessagesRelayed); got != 1 {
		t.Fatalf("relayed = %v", got)
	}
	if got := testutil.ToFloat64(m.MessagesDropped.WithLabelValues(DropNoRoute)); got != 1 {
		t.Fatalf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.Edges); got != 5 {
		t.Fatalf("edges = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("gather: %d %v", n, err)
	}
}
