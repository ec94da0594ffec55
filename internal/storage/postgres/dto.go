package postgres

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const orderColumns = `
	id, user_id, idempotency_key, status, payment_status,
	shipping_street, shipping_city, shipping_district, shipping_postal_code, shipping_country,
	shipping_building_number, shipping_apartment_number,
	billing_street, billing_city, billing_district, billing_postal_code, billing_country,
	billing_building_number, billing_apartment_number,
	subtotal, shipping_cost, total_amount, currency, notes, tracking_number,
	created_at, updated_at, shipped_at, delivered_at, cancelled_at, version`

type orderRow struct {
	ID                      string          `db:"id"`
	UserID                  string          `db:"user_id"`
	IdempotencyKey          sql.NullString  `db:"idempotency_key"`
	Status                  string          `db:"status"`
	PaymentStatus           string          `db:"payment_status"`
	ShippingStreet          string          `db:"shipping_street"`
	ShippingCity            string          `db:"shipping_city"`
	ShippingDistrict        string          `db:"shipping_district"`
	ShippingPostalCode      string          `db:"shipping_postal_code"`
	ShippingCountry         string          `db:"shipping_country"`
	ShippingBuildingNumber  string          `db:"shipping_building_number"`
	ShippingApartmentNumber string          `db:"shipping_apartment_number"`
	BillingStreet           sql.NullString  `db:"billing_street"`
	BillingCity             sql.NullString  `db:"billing_city"`
	BillingDistrict         sql.NullString  `db:"billing_district"`
	BillingPostalCode       sql.NullString  `db:"billing_postal_code"`
	BillingCountry          sql.NullString  `db:"billing_country"`
	BillingBuildingNumber   sql.NullString  `db:"billing_building_number"`
	BillingApartmentNumber  sql.NullString  `db:"billing_apartment_number"`
	SubTotal                decimal.Decimal `db:"subtotal"`
	ShippingCost            decimal.Decimal `db:"shipping_cost"`
	TotalAmount             decimal.Decimal `db:"total_amount"`
	Currency                string          `db:"currency"`
	Notes                   string          `db:"notes"`
	TrackingNumber          sql.NullString  `db:"tracking_number"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               sql.NullTime    `db:"updated_at"`
	ShippedAt               sql.NullTime    `db:"shipped_at"`
	DeliveredAt             sql.NullTime    `db:"delivered_at"`
	CancelledAt             sql.NullTime    `db:"cancelled_at"`
	Version                 int64           `db:"version"`
}

type orderItemRow struct {
	ID              string          `db:"id"`
	OrderID         string          `db:"order_id"`
	ProductID       string          `db:"product_id"`
	ProductName     string          `db:"product_name"`
	ProductImageURL sql.NullString  `db:"product_image_url"`
	Quantity        int             `db:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price"`
	TotalPrice      decimal.Decimal `db:"total_price"`
	Currency        string          `db:"currency"`
	Position        int             `db:"position"`
}

type outboxRow struct {
	ID          string         `db:"id"`
	Seq         int64          `db:"seq"`
	AggregateID string         `db:"aggregate_id"`
	Type        string         `db:"type"`
	Content     string         `db:"content"`
	OccurredAt  time.Time      `db:"occurred_at"`
	ProcessedAt sql.NullTime   `db:"processed_at"`
	RetryCount  int            `db:"retry_count"`
	Error       sql.NullString `db:"error"`
}

func toOrderRow(s domain.OrderSnapshot) orderRow {
	row := orderRow{
		ID:                      s.ID,
		UserID:                  s.UserID,
		IdempotencyKey:          nullString(s.IdempotencyKey),
		Status:                  string(s.Status),
		PaymentStatus:           string(s.PaymentStatus),
		ShippingStreet:          s.ShippingAddress.Street,
		ShippingCity:            s.ShippingAddress.City,
		ShippingDistrict:        s.ShippingAddress.District,
		ShippingPostalCode:      s.ShippingAddress.PostalCode,
		ShippingCountry:         s.ShippingAddress.Country,
		ShippingBuildingNumber:  s.ShippingAddress.BuildingNumber,
		ShippingApartmentNumber: s.ShippingAddress.ApartmentNumber,
		SubTotal:                s.SubTotal.Amount(),
		ShippingCost:            s.ShippingCost.Amount(),
		TotalAmount:             s.TotalAmount.Amount(),
		Currency:                s.Currency,
		Notes:                   s.Notes,
		TrackingNumber:          nullString(s.TrackingNumber),
		CreatedAt:               s.CreatedAt.UTC(),
		UpdatedAt:               nullTime(s.UpdatedAt),
		ShippedAt:               nullTime(s.ShippedAt),
		DeliveredAt:             nullTime(s.DeliveredAt),
		CancelledAt:             nullTime(s.CancelledAt),
		Version:                 s.Version,
	}
	if b := s.BillingAddress; b != nil {
		row.BillingStreet = sql.NullString{String: b.Street, Valid: true}
		row.BillingCity = sql.NullString{String: b.City, Valid: true}
		row.BillingDistrict = sql.NullString{String: b.District, Valid: true}
		row.BillingPostalCode = sql.NullString{String: b.PostalCode, Valid: true}
		row.BillingCountry = sql.NullString{String: b.Country, Valid: true}
		row.BillingBuildingNumber = sql.NullString{String: b.BuildingNumber, Valid: true}
		row.BillingApartmentNumber = sql.NullString{String: b.ApartmentNumber, Valid: true}
	}
	return row
}

func toItemRows(s domain.OrderSnapshot) []orderItemRow {
	rows := make([]orderItemRow, 0, len(s.Items))
	for i, it := range s.Items {
		rows = append(rows, orderItemRow{
			ID:              it.ID,
			OrderID:         s.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			ProductImageURL: nullString(it.ProductImageURL),
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice.Amount(),
			TotalPrice:      it.UnitPrice.Multiply(it.Quantity).Amount(),
			Currency:        s.Currency,
			Position:        i,
		})
	}
	return rows
}

func (r orderRow) snapshot(items []orderItemRow) (domain.OrderSnapshot, error) {
	s := domain.OrderSnapshot{
		ID:             r.ID,
		UserID:         r.UserID,
		IdempotencyKey: r.IdempotencyKey.String,
		Status:         domain.OrderStatus(r.Status),
		PaymentStatus:  domain.PaymentStatus(r.PaymentStatus),
		ShippingAddress: domain.Address{
			Street:          r.ShippingStreet,
			City:            r.ShippingCity,
			District:        r.ShippingDistrict,
			PostalCode:      r.ShippingPostalCode,
			Country:         r.ShippingCountry,
			BuildingNumber:  r.ShippingBuildingNumber,
			ApartmentNumber: r.ShippingApartmentNumber,
		},
		Currency:       r.Currency,
		Notes:          r.Notes,
		TrackingNumber: r.TrackingNumber.String,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      timePtr(r.UpdatedAt),
		ShippedAt:      timePtr(r.ShippedAt),
		DeliveredAt:    timePtr(r.DeliveredAt),
		CancelledAt:    timePtr(r.CancelledAt),
		Version:        r.Version,
	}
	if r.BillingStreet.Valid {
		s.BillingAddress = &domain.Address{
			Street:          r.BillingStreet.String,
			City:            r.BillingCity.String,
			District:        r.BillingDistrict.String,
			PostalCode:      r.BillingPostalCode.String,
			Country:         r.BillingCountry.String,
			BuildingNumber:  r.BillingBuildingNumber.String,
			ApartmentNumber: r.BillingApartmentNumber.String,
		}
	}

	var err error
	if s.ShippingCost, err = domain.NewMoney(r.ShippingCost, r.Currency); err != nil {
		return domain.OrderSnapshot{}, err
	}
	for _, it := range items {
		unit, err := domain.NewMoney(it.UnitPrice, r.Currency)
		if err != nil {
			return domain.OrderSnapshot{}, err
		}
		s.Items = append(s.Items, domain.OrderItemSnapshot{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			ProductImageURL: it.ProductImageURL.String,
			Quantity:        it.Quantity,
			UnitPrice:       unit,
		})
	}
	return s, nil
}

func (r outboxRow) message() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:          r.ID,
		AggregateID: r.AggregateID,
		Type:        domain.EventType(r.Type),
		Content:     []byte(r.Content),
		OccurredAt:  r.OccurredAt.UTC(),
		ProcessedAt: timePtr(r.ProcessedAt),
		RetryCount:  r.RetryCount,
		Error:       r.Error.String,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
