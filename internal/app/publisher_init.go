package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/redis"
)

// publishing собирает приёмники интеграционных событий для relay.
type publishing struct {
	publisher   messaging.Publisher
	deadLetters messaging.DeadLetterPublisher
	// pings проверяют доступность брокеров; у log-приёмника проверки нет.
	pings  map[string]func(ctx context.Context) error
	closer []func() error
}

func (p *publishing) close(logger *log.Entry) {
	for i := len(p.closer) - 1; i >= 0; i-- {
		if err := p.closer[i](); err != nil {
			logger.WithError(err).Warn("failed to close publisher")
		}
	}
}

func initPublishing(cfg Config, logger *log.Entry) (*publishing, error) {
	p := &publishing{pings: map[string]func(ctx context.Context) error{}}

	var publishers messaging.Fanout
	for _, name := range cfg.Publishers {
		switch name {
		case PublisherLog:
			publishers = append(publishers, messaging.NewLogPublisher(logger.WithField("publisher", PublisherLog)))

		case PublisherKafka:
			producer, err := initKafkaProducer(cfg, logger)
			if err != nil {
				p.close(logger)
				return nil, err
			}
			p.closer = append(p.closer, producer.Close)
			publishers = append(publishers, kafka.NewPublisher(producer, cfg.KafkaTopicPrefix))
			p.deadLetters = kafka.NewDeadLetterPublisher(producer, cfg.KafkaDLQTopic)

		case PublisherRedis:
			rp := redis.NewPublisher(cfg.RedisAddr, cfg.RedisChannelPrefix)
			p.closer = append(p.closer, rp.Close)
			p.pings[PublisherRedis] = rp.Ping
			publishers = append(publishers, rp)
			logger.WithField("addr", cfg.RedisAddr).Info("redis publisher initialized")

		default:
			p.close(logger)
			return nil, fmt.Errorf("unsupported publisher %q", name)
		}
	}

	switch len(publishers) {
	case 0:
		return nil, errors.New("no publishers configured")
	case 1:
		p.publisher = publishers[0]
	default:
		p.publisher = publishers
	}
	return p, nil
}

// initKafkaProducer создаёт sync producer для событий и DLQ.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers":      cfg.KafkaBrokers,
		"topic_prefix": cfg.KafkaTopicPrefix,
		"dlq_topic":    cfg.KafkaDLQTopic,
	}).Info("kafka producer initialized")
	return producer, nil
}
