package orders

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const (
	maxStreetLength       = 200
	maxCityLength         = 100
	maxDistrictLength     = 100
	maxPostalCodeLength   = 20
	maxCountryLength      = 100
	maxProductNameLength  = 200
	maxNotesLength        = 1000
	maxCancelReasonLength = 500
)

func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// validateCreate проверяет команду создания до того, как трогать агрегат.
func validateCreate(userID string, cmd CreateOrderCommand) error {
	verr := &domain.ValidationError{}

	if blank(userID) {
		verr.Add("user_id", "is required")
	}

	validateAddress(verr, "shipping_address", cmd.ShippingAddress, true)
	if cmd.BillingAddress != nil {
		validateAddress(verr, "billing_address", *cmd.BillingAddress, false)
	}
	if !domain.ValidCurrency(cmd.Currency) {
		verr.Add("currency", "must be a 3-letter ISO 4217 code")
	}

	if len(cmd.Items) == 0 {
		verr.Add("items", "must contain at least one item")
	}
	for i, item := range cmd.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		if blank(item.ProductID) {
			verr.Add(prefix+".product_id", "is required")
		}
		switch {
		case blank(item.ProductName):
			verr.Add(prefix+".product_name", "is required")
		case tooLong(item.ProductName, maxProductNameLength):
			verr.Add(prefix+".product_name", fmt.Sprintf("must be at most %d characters", maxProductNameLength))
		}
		if item.Quantity <= 0 {
			verr.Add(prefix+".quantity", "must be greater than zero")
		}
		if item.UnitPrice.IsNegative() {
			verr.Add(prefix+".unit_price", "must be non-negative")
		}
	}

	if cmd.ShippingCost.IsNegative() {
		verr.Add("shipping_cost", "must be non-negative")
	}
	if tooLong(cmd.Notes, maxNotesLength) {
		verr.Add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
	}
	if tooLong(domain.NormalizeIdempotencyKey(cmd.IdempotencyKey), domain.MaxIdempotencyKeyLength) {
		verr.Add("idempotency_key", fmt.Sprintf("must be at most %d characters", domain.MaxIdempotencyKeyLength))
	}

	return verr.OrNil()
}

// validateAddress проверяет адрес. Страна обязательна только для доставки;
// в платёжном адресе пустая страна заменяется на domain.DefaultCountry.
func validateAddress(verr *domain.ValidationError, prefix string, a AddressInput, countryRequired bool) {
	required := []struct {
		field string
		value string
		limit int
	}{
		{field: "street", value: a.Street, limit: maxStreetLength},
		{field: "city", value: a.City, limit: maxCityLength},
		{field: "district", value: a.District, limit: maxDistrictLength},
		{field: "postal_code", value: a.PostalCode, limit: maxPostalCodeLength},
	}
	for _, r := range required {
		switch {
		case blank(r.value):
			verr.Add(prefix+"."+r.field, "is required")
		case tooLong(strings.TrimSpace(r.value), r.limit):
			verr.Add(prefix+"."+r.field, fmt.Sprintf("must be at most %d characters", r.limit))
		}
	}
	switch {
	case countryRequired && blank(a.Country):
		verr.Add(prefix+".country", "is required")
	case tooLong(strings.TrimSpace(a.Country), maxCountryLength):
		verr.Add(prefix+".country", fmt.Sprintf("must be at most %d characters", maxCountryLength))
	}
}

func validateCancel(cmd CancelOrderCommand) error {
	verr := &domain.ValidationError{}
	if blank(cmd.OrderID) {
		verr.Add("order_id", "is required")
	}
	if tooLong(strings.TrimSpace(cmd.Reason), maxCancelReasonLength) {
		verr.Add("reason", fmt.Sprintf("must be at most %d characters", maxCancelReasonLength))
	}
	return verr.OrNil()
}

func validateListQuery(q ListQuery) error {
	if q.Status != "" && !q.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", q.Status))
	}
	return nil
}
