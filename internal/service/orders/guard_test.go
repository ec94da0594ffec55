package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	log "github.com/sirupsen/logrus"
)

type recorderStub struct{ calls int }

func (r *recorderStub) RecordUpstreamUnknown(string) { r.calls++ }

func testGuard(cfg GuardConfig, recorder upstreamRecorder) *guard {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return newGuard("catalog", cfg, log.NewEntry(logger), recorder)
}

func TestGuard_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	rec := &recorderStub{}
	g := testGuard(GuardConfig{Timeout: time.Second, Retries: 2, InitialBackoff: time.Millisecond}, rec)

	attempts := 0
	err := g.do(context.Background(), "check_stock", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if rec.calls != 0 {
		t.Fatalf("successful call must not be recorded as unknown")
	}
}

func TestGuard_BreakerOpensAfterConsecutiveErrors(t *testing.T) {
	t.Parallel()

	rec := &recorderStub{}
	g := testGuard(GuardConfig{
		Timeout:        time.Second,
		Retries:        0,
		InitialBackoff: time.Millisecond,
		BreakerErrors:  2,
		BreakerTimeout: time.Minute,
	}, rec)

	calls := 0
	failing := func(context.Context) error {
		calls++
		return errors.New("down")
	}

	for i := 0; i < 2; i++ {
		if err := g.do(context.Background(), "get_products", failing); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	err := g.do(context.Background(), "get_products", failing)
	if !errors.Is(err, breaker.ErrBreakerOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("open breaker must not call upstream, calls=%d", calls)
	}
	if rec.calls != 3 {
		t.Fatalf("expected 3 unknown results recorded, got %d", rec.calls)
	}
}

func TestGuard_AttemptTimeout(t *testing.T) {
	t.Parallel()

	g := testGuard(GuardConfig{Timeout: 20 * time.Millisecond, Retries: 0, InitialBackoff: time.Millisecond}, nil)

	started := time.Now()
	err := g.do(context.Background(), "clear_cart", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("attempt timeout was not applied")
	}
}

func TestGuardConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := GuardConfig{Retries: -3}.withDefaults()
	def := DefaultGuardConfig()
	if cfg.Retries != 0 {
		t.Fatalf("negative retries must become 0, got %d", cfg.Retries)
	}
	if cfg.Timeout != def.Timeout || cfg.BreakerErrors != def.BreakerErrors || cfg.BreakerTimeout != def.BreakerTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
