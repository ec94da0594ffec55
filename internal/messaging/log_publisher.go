package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// LogPublisher пишет интеграционные события в лог. Используется локально
// и как приёмник по умолчанию, когда брокер не настроен.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт publisher поверх logrus.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "log-publisher")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event IntegrationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Topic(), err)
	}
	p.logger.WithFields(log.Fields{
		"topic":   event.Topic(),
		"key":     event.Key(),
		"payload": string(payload),
	}).Info("integration event published")
	return nil
}

// Fanout публикует событие во все приёмники; ошибка любого делает
// публикацию неуспешной, и relay повторит её целиком.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event IntegrationEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = Fanout(nil)
)
