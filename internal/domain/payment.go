package domain

// PaymentStatus описывает состояние оплаты заказа; меняется независимо от Status.
type PaymentStatus string

const (
	// Оплата ещё не подтверждена.
	PaymentStatusPending PaymentStatus = "Pending"
	// Провайдер подтвердил списание.
	PaymentStatusCompleted PaymentStatus = "Completed"
	// Провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "Failed"
)

// Valid проверяет, что статус оплаты известен.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// MarkPaymentCompleted фиксирует успешную оплату; основной статус не меняется.
func (o *Order) MarkPaymentCompleted() {
	o.paymentStatus = PaymentStatusCompleted
	o.touch()
}

// MarkPaymentFailed фиксирует отказ оплаты и переводит заказ в Failed
// из любого статуса.
func (o *Order) MarkPaymentFailed() {
	o.paymentStatus = PaymentStatusFailed
	o.status = OrderStatusFailed
	o.touch()
}
