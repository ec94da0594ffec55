package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer оборачивает sarama.SyncProducer и добавляет отмену по ctx.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer создает Kafka producer без собственных повторов:
// повторами управляет outbox relay.
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 0
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// Send отправляет сообщение и ждёт подтверждения не дольше, чем живёт ctx.
// При отмене ctx ответ брокера дочитывается в фоне и только логируется.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	done := make(chan result, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- result{partition: partition, offset: offset, err: err}
	}()

	select {
	case <-ctx.Done():
		p.logger.WithField("topic", msg.Topic).Warn("kafka send abandoned: context finished before ack")
		return fmt.Errorf("send to %s: %w", msg.Topic, ctx.Err())
	case res := <-done:
		if res.err != nil {
			p.logger.WithError(res.err).WithField("topic", msg.Topic).Error("failed to send message to kafka")
			return fmt.Errorf("failed to send message: %w", res.err)
		}
		p.logger.WithFields(log.Fields{
			"topic":     msg.Topic,
			"partition": res.partition,
			"offset":    res.offset,
		}).Debug("message sent to kafka")
		return nil
	}
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
