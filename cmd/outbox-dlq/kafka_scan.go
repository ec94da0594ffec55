package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging/kafka"
)

const (
	defaultDLQTopic    = kafka.TopicDeadLetterQueue
	defaultIdleTimeout = 2 * time.Second
)

type consumerFactory func(brokers []string) (sarama.Consumer, error)

func newSaramaConsumer(brokers []string) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = "orderflow-outbox-dlq"
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return consumer, nil
}

type scanResult struct {
	scanned int
	skipped int
	ids     []string
}

// scanDeadLetters читает topic с самого старого offset, пока не наберёт limit
// писем или партиция не замолчит на idle.
func scanDeadLetters(ctx context.Context, consumer sarama.Consumer, topic string, limit int, idle time.Duration) (scanResult, error) {
	var res scanResult

	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return res, fmt.Errorf("get partitions for topic %s: %w", topic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	seen := make(map[string]struct{})
	for _, partition := range partitions {
		if res.scanned >= limit {
			break
		}
		if err := scanPartition(ctx, consumer, topic, partition, limit, idle, seen, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func scanPartition(
	ctx context.Context,
	consumer sarama.Consumer,
	topic string,
	partition int32,
	limit int,
	idle time.Duration,
	seen map[string]struct{},
	res *scanResult,
) error {
	pc, err := consumer.ConsumePartition(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	logger := log.WithFields(log.Fields{"topic": topic, "partition": partition})
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for res.scanned < limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return fmt.Errorf("consume partition %d: %w", partition, cerr.Err)
			}
		case msg := <-pc.Messages():
			if msg == nil {
				return nil
			}
			res.scanned++

			var letter messaging.DeadLetter
			if err := json.Unmarshal(msg.Value, &letter); err != nil || strings.TrimSpace(letter.OutboxID) == "" {
				res.skipped++
				logger.WithField("offset", msg.Offset).Warn("skipping message that is not an outbox dead letter")
			} else if _, dup := seen[letter.OutboxID]; !dup {
				seen[letter.OutboxID] = struct{}{}
				res.ids = append(res.ids, letter.OutboxID)
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		}
	}
	return nil
}

func fromKafkaAction(newConsumer consumerFactory) func(ctx context.Context, c *cli.Context, store deadLetterStore) error {
	return func(ctx context.Context, c *cli.Context, store deadLetterStore) error {
		limit := c.Int("limit")
		idle := c.Duration("idle-timeout")
		if limit <= 0 || idle <= 0 {
			return fmt.Errorf("limit and idle-timeout must be positive")
		}

		consumer, err := newConsumer(cleanIDs(c.StringSlice("brokers")))
		if err != nil {
			return err
		}
		defer func() { _ = consumer.Close() }()

		res, err := scanDeadLetters(ctx, consumer, c.String("topic"), limit, idle)
		if err != nil {
			return err
		}

		requeued := 0
		if c.Bool("execute") && len(res.ids) > 0 {
			if requeued, err = store.Requeue(ctx, res.ids); err != nil {
				return err
			}
		}

		mode := "dry-run"
		if c.Bool("execute") {
			mode = "execute"
		}
		log.WithFields(log.Fields{
			"mode":     mode,
			"scanned":  res.scanned,
			"skipped":  res.skipped,
			"ids":      len(res.ids),
			"requeued": requeued,
		}).Info("dead letter topic scanned")

		_, err = fmt.Fprintf(c.App.Writer, "%s: scanned=%d skipped=%d ids=%d requeued=%d\n",
			mode, res.scanned, res.skipped, len(res.ids), requeued)
		return err
	}
}
