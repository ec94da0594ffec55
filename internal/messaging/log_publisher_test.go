package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

type stubPublisher struct {
	err   error
	calls int
}

func (s *stubPublisher) Publish(context.Context, IntegrationEvent) error {
	s.calls++
	return s.err
}

func TestLogPublisher_Publish(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	publisher := NewLogPublisher(logger.WithField("component", "test"))

	reason := "changed mind"
	event := OrderCancelled{OrderID: "order-1", UserID: "user-1", Reason: &reason, OccurredAt: time.Now().UTC()}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected log entry")
	}
	if entry.Data["topic"] != TopicOrderCancelled || entry.Data["key"] != "order-1" {
		t.Fatalf("unexpected fields: %+v", entry.Data)
	}
	if payload, _ := entry.Data["payload"].(string); !strings.Contains(payload, `"reason":"changed mind"`) {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestLogPublisher_RespectsCancelledContext(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	publisher := NewLogPublisher(logger.WithField("component", "test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.Publish(ctx, OrderCreated{OrderID: "order-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(hook.AllEntries()) != 0 {
		t.Fatal("nothing must be logged for a cancelled publish")
	}
}

func TestFanout_Publish(t *testing.T) {
	t.Parallel()

	ok := &stubPublisher{}
	failing := &stubPublisher{err: errors.New("broker down")}

	err := Fanout{ok, failing}.Publish(context.Background(), OrderCreated{OrderID: "order-1"})
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Fatalf("every sink must be called once, got %d/%d", ok.calls, failing.calls)
	}
}
