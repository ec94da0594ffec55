package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation — базовая ошибка некорректного входа; конкретика в *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvariantViolation — нарушение инварианта агрегата (недопустимый переход и т.п.).
	ErrInvariantViolation = errors.New("domain invariant violation")
	// Арифметика над Money в разных валютах.
	ErrCurrencyMismatch = fmt.Errorf("%w: currency mismatch", ErrInvariantViolation)
	// Вычитание дало бы отрицательную сумму.
	ErrNegativeResult = fmt.Errorf("%w: money result is negative", ErrInvariantViolation)
	// Подтверждение пустого заказа.
	ErrOrderHasNoItems = fmt.Errorf("%w: order must contain at least one item", ErrInvariantViolation)
	// ErrForbidden — пользователь не владеет заказом и не имеет роли admin.
	ErrForbidden = errors.New("access to order is forbidden")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrDuplicateIdempotencyKey — заказ с такой парой (idempotency_key, user_id) уже записан.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrTransient — временная инфраструктурная ошибка (брокер, таймаут хранилища).
	ErrTransient = errors.New("transient infrastructure failure")
	// ErrUnknownEventType — в outbox лежит тип события, который код не знает.
	ErrUnknownEventType = errors.New("unknown domain event type")
	// ErrEventCorrupted — payload события в outbox не десериализуется.
	ErrEventCorrupted = errors.New("domain event payload corrupted")
)

// FieldError описывает проблему с одним полем входных данных.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError собирает ошибки по полям. errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError создаёт ошибку валидации с одним полем.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add добавляет ошибку поля.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Merge добавляет все поля другой ошибки с префиксом.
func (e *ValidationError) Merge(prefix string, other *ValidationError) {
	if other == nil {
		return
	}
	for _, f := range other.Fields {
		name := f.Field
		if prefix != "" {
			name = prefix + "." + f.Field
		}
		e.Add(name, f.Message)
	}
}

// OrNil возвращает nil, если ошибок полей нет.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvariantViolation — недопустимый переход состояния заказа.
type InvariantViolation struct {
	Operation string
	Current   OrderStatus
	Attempted OrderStatus
	Reason    string
}

func (e *InvariantViolation) Error() string {
	msg := fmt.Sprintf("cannot %s order in status %s", e.Operation, e.Current)
	if e.Attempted != "" && e.Attempted != e.Current {
		msg += fmt.Sprintf(" (attempted %s)", e.Attempted)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

// ErrorKind классифицирует ошибку для границы команд.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindInvariant  ErrorKind = "invariant"
	KindForbidden  ErrorKind = "forbidden"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindTransient  ErrorKind = "transient"
	KindInternal   ErrorKind = "internal"
)

// KindOf определяет вид ошибки. Forbidden проверяется раньше NotFound.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrOrderNotFound):
		return KindNotFound
	case errors.Is(err, ErrOrderVersionConflict), errors.Is(err, ErrDuplicateIdempotencyKey):
		return KindConflict
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsInvariantViolation сообщает, нарушает ли ошибка инвариант агрегата.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsDuplicateIdempotencyKey проверяет гонку на уникальном индексе idempotency.
func IsDuplicateIdempotencyKey(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}
