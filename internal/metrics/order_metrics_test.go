package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewOrderMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordReplay()
	second.RecordReplay()

	if got := counterValue(t, first.replays); got != 2 {
		t.Fatalf("expected shared replay counter = 2, got %v", got)
	}
}

func TestCommandResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ok"},
		{err: domain.NewValidationError("user_id", "is required"), want: "validation"},
		{err: &domain.InvariantViolation{Operation: "ship", Current: domain.OrderStatusPending}, want: "invariant"},
		{err: domain.ErrForbidden, want: "forbidden"},
		{err: fmt.Errorf("get: %w", domain.ErrOrderNotFound), want: "not_found"},
		{err: domain.ErrOrderVersionConflict, want: "conflict"},
		{err: fmt.Errorf("publish: %w", domain.ErrTransient), want: "transient"},
		{err: errors.New("boom"), want: "internal"},
	}

	for _, tt := range tests {
		if got := CommandResult(tt.err); got != tt.want {
			t.Fatalf("CommandResult(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOrderMetrics_RecordCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordCommand("create_order", nil, 20*time.Millisecond)
	m.RecordCommand("create_order", domain.ErrForbidden, time.Millisecond)
	m.RecordCommand("create_order", nil, time.Millisecond)

	if got := counterValue(t, m.commands.WithLabelValues("create_order", "ok")); got != 2 {
		t.Fatalf("expected 2 ok commands, got %v", got)
	}
	if got := counterValue(t, m.commands.WithLabelValues("create_order", "forbidden")); got != 1 {
		t.Fatalf("expected 1 forbidden command, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var samples uint64
	for _, family := range families {
		if family.GetName() != "orderflow_order_command_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			samples += metric.GetHistogram().GetSampleCount()
		}
	}
	if samples != 3 {
		t.Fatalf("expected 3 duration samples, got %d", samples)
	}
}

func TestOrderMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordOrderCreated()
	m.RecordOrderCancelled()
	m.RecordOrderCancelled()
	m.RecordUpstreamUnknown("catalog")

	if got := counterValue(t, m.ordersCreated); got != 1 {
		t.Fatalf("expected 1 created, got %v", got)
	}
	if got := counterValue(t, m.ordersCancelled); got != 2 {
		t.Fatalf("expected 2 cancelled, got %v", got)
	}
	if got := counterValue(t, m.upstreamUnknown.WithLabelValues("catalog")); got != 1 {
		t.Fatalf("expected 1 unknown catalog call, got %v", got)
	}
}
