package idempotency_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

type failingFinder struct{ err error }

func (f failingFinder) FindByIdempotencyKey(context.Context, string, string) (*domain.Order, error) {
	return nil, f.err
}

func savedOrder(t *testing.T, store *memory.Store, userID, key string) *domain.Order {
	t.Helper()
	addr, err := domain.NewAddress("Bağdat Cd.", "Istanbul", "Kadıköy", "34710", "", "", "")
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	order, err := domain.NewOrder(userID, addr, nil, "", key, "TRY")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if err := order.AddItem("p-1", "Kettle", "", 1, domain.MustMoney("10.00", "TRY")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := store.Save(context.Background(), order); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return order
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	existing := savedOrder(t, store, "user-1", "k-1")
	resolver := idempotency.NewResolver(store, nil)

	tests := []struct {
		name   string
		userID string
		key    string
		wantID string
	}{
		{name: "blank key", userID: "user-1", key: "   "},
		{name: "hit", userID: "user-1", key: "k-1", wantID: existing.ID()},
		{name: "hit with padding", userID: "user-1", key: " k-1 ", wantID: existing.ID()},
		{name: "other user", userID: "user-2", key: "k-1"},
		{name: "unknown key", userID: "user-1", key: "k-2"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			order, err := resolver.Resolve(context.Background(), tt.userID, tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantID == "" {
				if order != nil {
					t.Fatalf("expected miss, got %s", order.ID())
				}
				return
			}
			if order == nil || order.ID() != tt.wantID {
				t.Fatalf("expected order %s, got %+v", tt.wantID, order)
			}
		})
	}
}

func TestResolver_ResolveStorageError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	resolver := idempotency.NewResolver(failingFinder{err: boom}, nil)

	if _, err := resolver.Resolve(context.Background(), "user-1", "k-1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestResolver_RecoverReturnsWinner(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	winner := savedOrder(t, store, "user-1", "k-1")
	resolver := idempotency.NewResolver(store, nil)

	saveErr := fmt.Errorf("save order: %w", domain.ErrDuplicateIdempotencyKey)
	order, err := resolver.Recover(context.Background(), "user-1", "k-1", saveErr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID() != winner.ID() {
		t.Fatalf("expected winner %s, got %s", winner.ID(), order.ID())
	}
}

func TestResolver_RecoverPassesThroughOtherErrors(t *testing.T) {
	t.Parallel()

	resolver := idempotency.NewResolver(memory.NewStore(), nil)

	order, err := resolver.Recover(context.Background(), "user-1", "k-1", domain.ErrOrderVersionConflict)
	if order != nil || !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected original error, got %v (%v)", err, order)
	}
}

func TestResolver_RecoverWithoutWinner(t *testing.T) {
	t.Parallel()

	resolver := idempotency.NewResolver(memory.NewStore(), nil)

	_, err := resolver.Recover(context.Background(), "user-1", "k-1", domain.ErrDuplicateIdempotencyKey)
	if !errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}
