package messaging

import (
	"context"
	"encoding/json"
	"time"
)

// DeadLetter — outbox-сообщение, исчерпавшее лимит попыток.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Content        json.RawMessage `json:"content"`
	Error          string          `json:"error"`
	RetryCount     int             `json:"retry_count"`
	DeadLetteredAt time.Time       `json:"dead_lettered_at"`
}

// DeadLetterPublisher выносит poison-сообщения во внешний канал для разбора.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, letter DeadLetter) error
}
