package orders

import (
	"context"
	"errors"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/eapache/go-resiliency/retrier"
	log "github.com/sirupsen/logrus"
)

// GuardConfig задаёт политику вызова внешнего сервиса.
type GuardConfig struct {
	// Дедлайн одной попытки.
	Timeout time.Duration
	// Число повторов после первой попытки.
	Retries        int
	InitialBackoff time.Duration
	// BreakerErrors ошибок подряд размыкают breaker на BreakerTimeout.
	BreakerErrors  int
	BreakerTimeout time.Duration
}

// DefaultGuardConfig возвращает политику по умолчанию для корзины и каталога.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:        2 * time.Second,
		Retries:        2,
		InitialBackoff: 50 * time.Millisecond,
		BreakerErrors:  5,
		BreakerTimeout: 30 * time.Second,
	}
}

func (c GuardConfig) withDefaults() GuardConfig {
	def := DefaultGuardConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.BreakerErrors <= 0 {
		c.BreakerErrors = def.BreakerErrors
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = def.BreakerTimeout
	}
	return c
}

// upstreamRecorder учитывает вызовы, завершившиеся «неизвестно».
type upstreamRecorder interface {
	RecordUpstreamUnknown(upstream string)
}

// guard оборачивает вызов внешнего сервиса в timeout, retrier и breaker.
// Ошибка guard означает «результат неизвестен».
type guard struct {
	name     string
	timeout  time.Duration
	retrier  *retrier.Retrier
	breaker  *breaker.Breaker
	logger   *log.Entry
	recorder upstreamRecorder
}

func newGuard(name string, cfg GuardConfig, logger *log.Entry, recorder upstreamRecorder) *guard {
	cfg = cfg.withDefaults()
	return &guard{
		name:    name,
		timeout: cfg.Timeout,
		retrier: retrier.New(
			retrier.ExponentialBackoff(cfg.Retries, cfg.InitialBackoff),
			retrier.BlacklistClassifier{breaker.ErrBreakerOpen, context.Canceled},
		),
		breaker:  breaker.New(cfg.BreakerErrors, 1, cfg.BreakerTimeout),
		logger:   logger.WithField("upstream", name),
		recorder: recorder,
	}
}

func (g *guard) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := g.retrier.RunCtx(ctx, func(ctx context.Context) error {
		return g.breaker.Run(func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return fn(callCtx)
		})
	})
	if err == nil {
		return nil
	}

	if g.recorder != nil {
		g.recorder.RecordUpstreamUnknown(g.name)
	}
	entry := g.logger.WithError(err).WithField("operation", operation)
	if errors.Is(err, breaker.ErrBreakerOpen) {
		entry.Debug("upstream call skipped: breaker is open")
	} else {
		entry.Warn("upstream call failed, result is unknown")
	}
	return err
}
