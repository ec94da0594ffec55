package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
)

// Publisher публикует интеграционные события в topic <prefix><event>.
type Publisher struct {
	producer    *Producer
	topicPrefix string
}

// NewPublisher создаёт Kafka-паблишер интеграционных событий.
func NewPublisher(producer *Producer, topicPrefix string) *Publisher {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &Publisher{producer: producer, topicPrefix: topicPrefix}
}

// TopicFor возвращает Kafka topic для события.
func (p *Publisher) TopicFor(event messaging.IntegrationEvent) string {
	return p.topicPrefix + event.Topic()
}

func (p *Publisher) Publish(ctx context.Context, event messaging.IntegrationEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka publisher is not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Topic(), err)
	}

	return p.producer.Send(ctx, &sarama.ProducerMessage{
		Topic: p.TopicFor(event),
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(event.Topic())},
		},
	})
}

// DeadLetterPublisher отправляет poison-сообщения outbox в DLQ topic.
type DeadLetterPublisher struct {
	producer *Producer
	topic    string
}

// NewDeadLetterPublisher создаёт DLQ-паблишер.
func NewDeadLetterPublisher(producer *Producer, topic string) *DeadLetterPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DeadLetterPublisher{producer: producer, topic: topic}
}

func (p *DeadLetterPublisher) PublishDeadLetter(ctx context.Context, letter messaging.DeadLetter) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	key := letter.AggregateID
	if key == "" {
		key = letter.OutboxID
	}
	return p.producer.Send(ctx, &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderOutboxID), Value: []byte(letter.OutboxID)},
			{Key: []byte(HeaderEventType), Value: []byte(letter.EventType)},
			{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(letter.RetryCount))},
			{Key: []byte(HeaderErrorMessage), Value: []byte(letter.Error)},
			{Key: []byte(HeaderFailedAt), Value: []byte(letter.DeadLetteredAt.UTC().Format(time.RFC3339Nano))},
		},
	})
}

var (
	_ messaging.Publisher           = (*Publisher)(nil)
	_ messaging.DeadLetterPublisher = (*DeadLetterPublisher)(nil)
)
