package kafka

// Topics для Kafka. Имя события добавляется к префиксу: orderflow.order-created.
const (
	DefaultTopicPrefix   = "orderflow."
	TopicDeadLetterQueue = "orderflow.outbox.dlq"
)

// Kafka headers
const (
	HeaderEventType    = "x-event-type"
	HeaderRetryCount   = "x-retry-count"
	HeaderErrorMessage = "x-error-message"
	HeaderFailedAt     = "x-failed-at"
	HeaderOutboxID     = "x-outbox-id"
)
