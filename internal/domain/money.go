package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency используется, когда код валюты не передан.
const DefaultCurrency = "TRY"

const moneyScale = 2

const currencyCodeLength = 3

// Money — неизменяемая сумма с точностью 2 знака и кодом валюты.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney создаёт сумму; отрицательные значения отклоняются.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, NewValidationError("amount", "must be non-negative")
	}
	currency = normalizeCurrency(currency)
	if !ValidCurrency(currency) {
		return Money{}, NewValidationError("currency", currencyMessage)
	}
	return Money{amount: amount.Round(moneyScale), currency: currency}, nil
}

// MustMoney паникует вместо ошибки; для констант в тестах и фикстурах.
func MustMoney(amount string, currency string) Money {
	m, err := NewMoney(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney возвращает ноль в указанной валюте.
func ZeroMoney(currency string) Money {
	return Money{amount: decimal.Zero, currency: normalizeCurrency(currency)}
}

const currencyMessage = "must be a 3-letter ISO 4217 code"

// ValidCurrency проверяет код валюты после нормализации: ровно три латинские буквы.
// Пустая строка допустима и означает DefaultCurrency.
func ValidCurrency(currency string) bool {
	currency = normalizeCurrency(currency)
	if len(currency) != currencyCodeLength {
		return false
	}
	for i := 0; i < len(currency); i++ {
		if currency[i] < 'A' || currency[i] > 'Z' {
			return false
		}
	}
	return true
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}

// Amount возвращает сумму.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency возвращает код валюты.
func (m Money) Currency() string {
	if m.currency == "" {
		return DefaultCurrency
	}
	return m.currency
}

// IsZero проверяет нулевую сумму.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Add складывает суммы одной валюты.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency() != other.Currency() {
		return Money{}, fmt.Errorf("add %s to %s: %w", other.Currency(), m.Currency(), ErrCurrencyMismatch)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.Currency()}, nil
}

// Subtract вычитает сумму той же валюты; результат не может быть отрицательным.
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency() != other.Currency() {
		return Money{}, fmt.Errorf("subtract %s from %s: %w", other.Currency(), m.Currency(), ErrCurrencyMismatch)
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, ErrNegativeResult
	}
	return Money{amount: result, currency: m.Currency()}, nil
}

// Multiply умножает сумму на количество единиц.
func (m Money) Multiply(quantity int) Money {
	if quantity < 0 {
		quantity = 0
	}
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(quantity))), currency: m.Currency()}
}

// Equal сравнивает сумму и валюту.
func (m Money) Equal(other Money) bool {
	return m.Currency() == other.Currency() && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.StringFixed(moneyScale) + " " + m.Currency()
}
