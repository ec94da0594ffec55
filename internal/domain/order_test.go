package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

func testAddress(t *testing.T) domain.Address {
	t.Helper()
	addr, err := domain.NewAddress("Bağdat Cd.", "Istanbul", "Kadıköy", "34710", "", "5", "")
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	return addr
}

// newPendingOrder собирает заказ с двумя позициями без стоимости доставки.
func newPendingOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder("user-1", testAddress(t), nil, "", "", "TRY")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if err := order.AddItem("p-1", "Kettle", "", 2, domain.MustMoney("10.00", "TRY")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if err := order.AddItem("p-2", "Mug", "https://img/mug.png", 1, domain.MustMoney("5.00", "TRY")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	return order
}

func orderInStatus(t *testing.T, status domain.OrderStatus) *domain.Order {
	t.Helper()
	order := newPendingOrder(t)
	steps := map[domain.OrderStatus][]func() error{
		domain.OrderStatusPending:    nil,
		domain.OrderStatusConfirmed:  {order.Confirm},
		domain.OrderStatusProcessing: {order.Confirm, order.MarkAsProcessing},
		domain.OrderStatusShipped:    {order.Confirm, order.MarkAsProcessing, func() error { return order.Ship("TRK-1") }},
		domain.OrderStatusDelivered:  {order.Confirm, order.MarkAsProcessing, func() error { return order.Ship("TRK-1") }, order.MarkAsDelivered},
		domain.OrderStatusCancelled:  {func() error { return order.Cancel("") }},
		domain.OrderStatusFailed:     {func() error { order.MarkPaymentFailed(); return nil }},
	}
	for _, step := range steps[status] {
		if err := step(); err != nil {
			t.Fatalf("prepare %s: %v", status, err)
		}
	}
	if order.Status() != status {
		t.Fatalf("expected status %s, got %s", status, order.Status())
	}
	return order
}

func assertTotals(t *testing.T, order *domain.Order) {
	t.Helper()
	sum := domain.ZeroMoney(order.Currency())
	for _, item := range order.Items() {
		var err error
		sum, err = sum.Add(item.TotalPrice())
		if err != nil {
			t.Fatalf("sum items: %v", err)
		}
	}
	if !order.SubTotal().Equal(sum) {
		t.Fatalf("SubTotal %s != sum of items %s", order.SubTotal(), sum)
	}
	total, _ := sum.Add(order.ShippingCost())
	if !order.TotalAmount().Equal(total) {
		t.Fatalf("TotalAmount %s != SubTotal + ShippingCost %s", order.TotalAmount(), total)
	}
}

func TestNewOrder_RequiresUser(t *testing.T) {
	t.Parallel()

	_, err := domain.NewOrder("  ", testAddress(t), nil, "", "", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	order, err := domain.NewOrder("user-1", testAddress(t), nil, " note ", " key-1 ", "")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if order.Status() != domain.OrderStatusPending || order.PaymentStatus() != domain.PaymentStatusPending {
		t.Fatalf("unexpected initial statuses %s/%s", order.Status(), order.PaymentStatus())
	}
	if !order.TotalAmount().IsZero() || order.Currency() != domain.DefaultCurrency {
		t.Fatalf("expected zero totals in %s, got %s", domain.DefaultCurrency, order.TotalAmount())
	}
	if order.IdempotencyKey() != "key-1" || order.Notes() != "note" {
		t.Fatal("expected trimmed key and notes")
	}
	if !order.IsNew() || len(order.PendingEvents()) != 0 {
		t.Fatal("new order must be unsaved and without events")
	}
}

func TestOrder_ItemMutationsKeepTotals(t *testing.T) {
	t.Parallel()

	order, err := domain.NewOrder("user-1", testAddress(t), nil, "", "", "TRY")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if err := order.SetShippingCost(domain.MustMoney("3.00", "TRY")); err != nil {
		t.Fatalf("SetShippingCost failed: %v", err)
	}

	steps := []func() error{
		func() error { return order.AddItem("p-1", "Kettle", "", 1, domain.MustMoney("10.00", "TRY")) },
		func() error { return order.AddItem("p-2", "Mug", "", 3, domain.MustMoney("4.25", "TRY")) },
		func() error { return order.AddItem("p-1", "Kettle", "", 2, domain.MustMoney("10.00", "TRY")) },
		func() error { return order.RemoveItem("p-2") },
		func() error { return order.RemoveItem("missing") },
		func() error { return order.AddItem("p-3", "Tray", "", 1, domain.MustMoney("0.99", "TRY")) },
		func() error { return order.RemoveItem("p-1") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		assertTotals(t, order)
	}

	items := order.Items()
	if len(items) != 1 || items[0].ProductID() != "p-3" {
		t.Fatalf("unexpected items after mutations: %+v", items)
	}
	if got := order.TotalAmount().String(); got != "3.99 TRY" {
		t.Fatalf("unexpected total %s", got)
	}
}

func TestOrder_AddItemMergesDuplicates(t *testing.T) {
	t.Parallel()

	order := newPendingOrder(t)
	if err := order.AddItem("p-1", "Kettle", "", 3, domain.MustMoney("10.00", "TRY")); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	items := order.Items()
	if len(items) != 2 {
		t.Fatalf("expected lines to merge, got %d", len(items))
	}
	if items[0].Quantity() != 5 || items[0].TotalPrice().String() != "50.00 TRY" {
		t.Fatalf("unexpected merged line: qty=%d total=%s", items[0].Quantity(), items[0].TotalPrice())
	}
}

func TestOrder_AddItemRejectsBadInput(t *testing.T) {
	t.Parallel()

	order := newPendingOrder(t)
	if err := order.AddItem("p-9", "Lamp", "", 0, domain.MustMoney("1.00", "TRY")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
	if err := order.AddItem("p-9", "Lamp", "", 1, domain.MustMoney("1.00", "EUR")); !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
	if err := order.SetShippingCost(domain.MustMoney("1.00", "EUR")); !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch for shipping, got %v", err)
	}
	assertTotals(t, order)
}

func TestOrder_ConfirmRequiresItemsAndPending(t *testing.T) {
	t.Parallel()

	empty, _ := domain.NewOrder("user-1", testAddress(t), nil, "", "", "")
	if err := empty.Confirm(); !errors.Is(err, domain.ErrOrderHasNoItems) {
		t.Fatalf("expected ErrOrderHasNoItems, got %v", err)
	}
	if empty.Status() != domain.OrderStatusPending || len(empty.PendingEvents()) != 0 {
		t.Fatal("failed confirm must not change state or emit events")
	}

	for _, status := range domain.AllOrderStatuses {
		if status == domain.OrderStatusPending {
			continue
		}
		order := orderInStatus(t, status)
		if err := order.Confirm(); !domain.IsInvariantViolation(err) {
			t.Fatalf("confirm from %s: expected invariant violation, got %v", status, err)
		}
	}
}

func TestOrder_CreateAndConfirm(t *testing.T) {
	t.Parallel()

	order := newPendingOrder(t)
	if err := order.SetShippingCost(domain.MustMoney("3.00", "TRY")); err != nil {
		t.Fatalf("SetShippingCost failed: %v", err)
	}
	if err := order.Confirm(); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	if got := order.SubTotal().String(); got != "25.00 TRY" {
		t.Fatalf("SubTotal = %s, want 25.00 TRY", got)
	}
	if got := order.TotalAmount().String(); got != "28.00 TRY" {
		t.Fatalf("TotalAmount = %s, want 28.00 TRY", got)
	}
	if order.Status() != domain.OrderStatusConfirmed {
		t.Fatalf("expected Confirmed, got %s", order.Status())
	}

	events := order.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	created, ok := events[0].(domain.OrderCreated)
	if !ok {
		t.Fatalf("expected OrderCreated, got %T", events[0])
	}
	if created.OrderID != order.ID() || created.UserID != "user-1" || created.ItemCount != 2 || created.Currency != "TRY" {
		t.Fatalf("unexpected event payload: %+v", created)
	}
	if created.TotalAmount.StringFixed(2) != "28.00" || len(created.Items) != 2 {
		t.Fatalf("unexpected event totals: %+v", created)
	}
	if created.EventID() == "" || created.OccurredAt().Location().String() != "UTC" {
		t.Fatal("event must carry id and UTC timestamp")
	}
}

func TestOrder_CancelConfirmed(t *testing.T) {
	t.Parallel()

	order := orderInStatus(t, domain.OrderStatusConfirmed)
	order.ClearEvents()

	if err := order.Cancel("changed mind"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if order.Status() != domain.OrderStatusCancelled || order.CancelledAt() == nil {
		t.Fatalf("expected Cancelled with timestamp, got %s", order.Status())
	}
	if order.Notes() != "Cancellation reason: changed mind" {
		t.Fatalf("unexpected notes %q", order.Notes())
	}

	events := order.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	cancelled, ok := events[0].(domain.OrderCancelled)
	if !ok || cancelled.Reason != "changed mind" || cancelled.OrderID != order.ID() {
		t.Fatalf("unexpected event %+v", events[0])
	}

	err := order.Ship("TRK-9")
	var violation *domain.InvariantViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected InvariantViolation on ship, got %v", err)
	}
	if violation.Current != domain.OrderStatusCancelled || violation.Attempted != domain.OrderStatusShipped {
		t.Fatalf("unexpected violation %+v", violation)
	}
}

func TestOrder_CancelAppendsReasonToNotes(t *testing.T) {
	t.Parallel()

	order, _ := domain.NewOrder("user-1", testAddress(t), nil, "leave at door", "", "")
	if err := order.Cancel("  too slow "); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if order.Notes() != "leave at door\nCancellation reason: too slow" {
		t.Fatalf("unexpected notes %q", order.Notes())
	}

	blank, _ := domain.NewOrder("user-1", testAddress(t), nil, "keep", "", "")
	if err := blank.Cancel("   "); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if blank.Notes() != "keep" {
		t.Fatalf("blank reason must not touch notes, got %q", blank.Notes())
	}
	if ev := blank.PendingEvents()[0].(domain.OrderCancelled); ev.Reason != "" {
		t.Fatalf("expected empty reason, got %q", ev.Reason)
	}
}

func TestOrder_TransitionTable(t *testing.T) {
	t.Parallel()

	type operation struct {
		name  string
		legal []domain.OrderStatus
		run   func(*domain.Order) error
	}
	price := domain.MustMoney("1.00", "TRY")
	operations := []operation{
		{"add item", []domain.OrderStatus{domain.OrderStatusPending}, func(o *domain.Order) error {
			return o.AddItem("p-x", "Extra", "", 1, price)
		}},
		{"remove item", []domain.OrderStatus{domain.OrderStatusPending}, func(o *domain.Order) error {
			return o.RemoveItem("p-1")
		}},
		{"confirm", []domain.OrderStatus{domain.OrderStatusPending}, (*domain.Order).Confirm},
		{"mark as processing", []domain.OrderStatus{domain.OrderStatusConfirmed}, (*domain.Order).MarkAsProcessing},
		{"ship", []domain.OrderStatus{domain.OrderStatusProcessing}, func(o *domain.Order) error {
			return o.Ship("TRK-2")
		}},
		{"mark as delivered", []domain.OrderStatus{domain.OrderStatusShipped}, (*domain.Order).MarkAsDelivered},
		{"cancel", []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusProcessing}, func(o *domain.Order) error {
			return o.Cancel("reason")
		}},
	}

	for _, op := range operations {
		for _, status := range domain.AllOrderStatuses {
			legal := false
			for _, s := range op.legal {
				legal = legal || s == status
			}

			t.Run(op.name+"/"+string(status), func(t *testing.T) {
				order := orderInStatus(t, status)
				err := op.run(order)
				if legal {
					if err != nil {
						t.Fatalf("expected %s from %s to succeed, got %v", op.name, status, err)
					}
					return
				}

				var violation *domain.InvariantViolation
				if !errors.As(err, &violation) {
					t.Fatalf("expected InvariantViolation for %s from %s, got %v", op.name, status, err)
				}
				if violation.Current != status {
					t.Fatalf("violation reports current %s, want %s", violation.Current, status)
				}
				if order.Status() != status {
					t.Fatalf("illegal %s changed status to %s", op.name, order.Status())
				}
			})
		}
	}
}

func TestOrder_PaymentStatusIsIndependent(t *testing.T) {
	t.Parallel()

	order := orderInStatus(t, domain.OrderStatusProcessing)
	order.MarkPaymentCompleted()
	if order.PaymentStatus() != domain.PaymentStatusCompleted || order.Status() != domain.OrderStatusProcessing {
		t.Fatalf("payment completion must not change status: %s/%s", order.Status(), order.PaymentStatus())
	}

	for _, status := range domain.AllOrderStatuses {
		o := orderInStatus(t, status)
		o.MarkPaymentFailed()
		if o.Status() != domain.OrderStatusFailed || o.PaymentStatus() != domain.PaymentStatusFailed {
			t.Fatalf("payment failure from %s must force Failed, got %s", status, o.Status())
		}
	}
}

func TestOrder_ShipRequiresTrackingNumber(t *testing.T) {
	t.Parallel()

	order := orderInStatus(t, domain.OrderStatusProcessing)
	if err := order.Ship("  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := order.Ship(" TRK-7 "); err != nil {
		t.Fatalf("Ship failed: %v", err)
	}
	if order.TrackingNumber() != "TRK-7" || order.ShippedAt() == nil {
		t.Fatal("expected tracking number and shipped timestamp")
	}
	if err := order.MarkAsDelivered(); err != nil || order.DeliveredAt() == nil {
		t.Fatalf("MarkAsDelivered failed: %v", err)
	}
}

func TestOrder_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	billing := testAddress(t)
	order, _ := domain.NewOrder("user-1", testAddress(t), &billing, "note", "key-7", "TRY")
	_ = order.AddItem("p-1", "Kettle", "img", 2, domain.MustMoney("10.00", "TRY"))
	_ = order.SetShippingCost(domain.MustMoney("3.00", "TRY"))
	_ = order.Confirm()

	snap := order.Snapshot()
	restored, err := domain.RestoreOrder(snap)
	if err != nil {
		t.Fatalf("RestoreOrder failed: %v", err)
	}

	if restored.ID() != order.ID() || restored.Status() != order.Status() || restored.IdempotencyKey() != "key-7" {
		t.Fatal("identity fields were not restored")
	}
	if !restored.TotalAmount().Equal(order.TotalAmount()) || !restored.SubTotal().Equal(order.SubTotal()) {
		t.Fatalf("totals differ: %s vs %s", restored.TotalAmount(), order.TotalAmount())
	}
	if restored.BillingAddress() == nil || !restored.BillingAddress().Equal(billing) {
		t.Fatal("billing address was not restored")
	}
	if restored.IsNew() || len(restored.PendingEvents()) != 0 {
		t.Fatal("restored order must be persisted and without buffered events")
	}

	snap.Status = "Unknown"
	if _, err := domain.RestoreOrder(snap); err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

func TestOrder_MarkCommittedClearsEvents(t *testing.T) {
	t.Parallel()

	order := orderInStatus(t, domain.OrderStatusConfirmed)
	if len(order.PendingEvents()) != 1 {
		t.Fatal("expected buffered OrderCreated")
	}
	order.MarkCommitted(3)
	if order.Version() != 3 || order.IsNew() || len(order.PendingEvents()) != 0 {
		t.Fatalf("unexpected state after commit: version=%d new=%v", order.Version(), order.IsNew())
	}
}
