package outbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
)

// MapIntegrationEvent переводит доменное событие во внешний контракт.
// ok=false означает, что событие наружу не публикуется.
func MapIntegrationEvent(event domain.Event) (messaging.IntegrationEvent, bool, error) {
	switch ev := event.(type) {
	case domain.OrderCreated:
		items := make([]messaging.OrderCreatedItem, 0, len(ev.Items))
		for _, item := range ev.Items {
			items = append(items, messaging.OrderCreatedItem{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   json.Number(item.UnitPrice.StringFixed(2)),
			})
		}
		return messaging.OrderCreated{
			OrderID:     ev.OrderID,
			UserID:      ev.UserID,
			TotalAmount: json.Number(ev.TotalAmount.StringFixed(2)),
			Currency:    ev.Currency,
			ItemCount:   ev.ItemCount,
			OccurredAt:  ev.OccurredOn.UTC(),
			Items:       items,
		}, true, nil
	case domain.OrderCancelled:
		var reason *string
		if r := strings.TrimSpace(ev.Reason); r != "" {
			reason = &r
		}
		return messaging.OrderCancelled{
			OrderID:    ev.OrderID,
			UserID:     ev.UserID,
			Reason:     reason,
			OccurredAt: ev.OccurredOn.UTC(),
		}, true, nil
	case nil:
		return nil, false, fmt.Errorf("map integration event: nil event")
	default:
		return nil, false, fmt.Errorf("%w: %T", domain.ErrUnknownEventType, event)
	}
}
