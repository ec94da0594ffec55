package outbox

import (
	"fmt"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// Capture превращает буферизованные события агрегатов в строки outbox.
// Порядок строк совпадает с порядком появления событий, id строки равен id события.
// Буферы агрегатов не очищаются: это делает хранилище после коммита.
func Capture(aggregates ...domain.EventSource) ([]domain.OutboxMessage, error) {
	var messages []domain.OutboxMessage
	for _, aggregate := range aggregates {
		if aggregate == nil {
			continue
		}
		for _, event := range aggregate.PendingEvents() {
			eventType, content, err := domain.MarshalEvent(event)
			if err != nil {
				return nil, fmt.Errorf("capture %s event of %s: %w", event.EventType(), aggregate.AggregateID(), err)
			}
			messages = append(messages, domain.OutboxMessage{
				ID:          event.EventID(),
				AggregateID: event.AggregateID(),
				Type:        eventType,
				Content:     content,
				OccurredAt:  event.OccurredAt().UTC(),
			})
		}
	}
	return messages, nil
}
