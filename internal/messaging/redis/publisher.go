package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
)

// DefaultChannelPrefix: каналы Pub/Sub называются orderflow:order-created и т.д.
const DefaultChannelPrefix = "orderflow:"

// Publisher публикует интеграционные события в Redis Pub/Sub.
type Publisher struct {
	client        *goredis.Client
	channelPrefix string
	logger        *log.Entry
}

// NewPublisher создаёт клиента Redis и паблишер поверх него.
func NewPublisher(addr, channelPrefix string) *Publisher {
	return NewPublisherWithClient(goredis.NewClient(&goredis.Options{Addr: addr}), channelPrefix)
}

// NewPublisherWithClient использует уже созданный клиент.
func NewPublisherWithClient(client *goredis.Client, channelPrefix string) *Publisher {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Publisher{
		client:        client,
		channelPrefix: channelPrefix,
		logger:        log.WithField("component", "redis-publisher"),
	}
}

// ChannelFor возвращает канал Pub/Sub для события.
func (p *Publisher) ChannelFor(event messaging.IntegrationEvent) string {
	return p.channelPrefix + event.Topic()
}

func (p *Publisher) Publish(ctx context.Context, event messaging.IntegrationEvent) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("redis publisher is not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Topic(), err)
	}

	channel := p.ChannelFor(event)
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	p.logger.WithFields(log.Fields{
		"channel":   channel,
		"key":       event.Key(),
		"receivers": receivers,
	}).Debug("event published to redis")
	return nil
}

// Ping проверяет доступность Redis; используется readiness-проверкой.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("redis publisher is not initialized")
	}
	return p.client.Ping(ctx).Err()
}

// Close закрывает соединения с Redis.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var _ messaging.Publisher = (*Publisher)(nil)
