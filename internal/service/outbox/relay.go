package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
)

const (
	defaultPollInterval    = 10 * time.Second
	defaultBatchSize       = 20
	defaultMaxRetries      = 5
	defaultPublishTimeout  = 5 * time.Second
	defaultLease           = time.Minute
	defaultCompleteTimeout = 5 * time.Second
)

// Значения label result у orderflow_outbox_publish_attempts_total.
const (
	resultSent       = "sent"
	resultFailed     = "failed"
	resultSkipped    = "skipped"
	resultCorrupted  = "corrupted"
	resultDeadLetter = "dead_letter"
	resultDLQFailed  = "dlq_failed"
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orderflow_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orderflow_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
	outboxDeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_outbox_dead_letters_total",
		Help: "Total number of outbox records that exhausted their retries.",
	})
)

// RelayOptions задаёт параметры relay.
type RelayOptions struct {
	Logger              *log.Entry
	DeadLetterPublisher messaging.DeadLetterPublisher
	PollInterval        time.Duration
	BatchSize           int
	MaxRetries          int
	PublishTimeout      time.Duration
	Lease               time.Duration
	Owner               string
}

// Option настраивает Relay.
type Option func(*RelayOptions)

// WithLogger задаёт logger для relay.
func WithLogger(logger *log.Entry) Option {
	return func(opts *RelayOptions) {
		opts.Logger = logger
	}
}

// WithDeadLetterPublisher задаёт получателя poison-сообщений.
func WithDeadLetterPublisher(publisher messaging.DeadLetterPublisher) Option {
	return func(opts *RelayOptions) {
		opts.DeadLetterPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *RelayOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *RelayOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxRetries задаёт число неудачных публикаций, после которого строка
// больше не выбирается.
func WithMaxRetries(maxRetries int) Option {
	return func(opts *RelayOptions) {
		opts.MaxRetries = maxRetries
	}
}

// WithPublishTimeout ограничивает одну публикацию.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(opts *RelayOptions) {
		opts.PublishTimeout = timeout
	}
}

// WithLease задаёт срок аренды захваченных строк. Аренда короче двух
// PublishTimeout увеличивается до этого минимума.
func WithLease(lease time.Duration) Option {
	return func(opts *RelayOptions) {
		opts.Lease = lease
	}
}

// WithOwner задаёт идентификатор инстанса relay.
func WithOwner(owner string) Option {
	return func(opts *RelayOptions) {
		opts.Owner = owner
	}
}

// Relay доставляет строки outbox во внешний Publisher.
type Relay struct {
	repo           domain.OutboxRepository
	publisher      messaging.Publisher
	deadLetters    messaging.DeadLetterPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxRetries     int
	publishTimeout time.Duration
	lease          time.Duration
	owner          string
	now            func() time.Time
}

// NewRelay создаёт outbox relay.
func NewRelay(repo domain.OutboxRepository, publisher messaging.Publisher, options ...Option) *Relay {
	opts := RelayOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxRetries:     defaultMaxRetries,
		PublishTimeout: defaultPublishTimeout,
		Lease:          defaultLease,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	if opts.Lease < MinLease(opts.PublishTimeout) {
		opts.Lease = MinLease(opts.PublishTimeout)
	}
	if opts.Owner == "" {
		opts.Owner = "relay-" + uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-relay")
	}

	return &Relay{
		repo:           repo,
		publisher:      publisher,
		deadLetters:    opts.DeadLetterPublisher,
		logger:         logger.WithField("owner", opts.Owner),
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxRetries:     opts.MaxRetries,
		publishTimeout: opts.PublishTimeout,
		lease:          opts.Lease,
		owner:          opts.Owner,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// MinLease возвращает наименьшую аренду, при которой в батч помещается
// хотя бы одна публикация с запасом на Complete.
func MinLease(publishTimeout time.Duration) time.Duration {
	return 2 * publishTimeout
}

// leaseBudget возвращает момент, после которого строки батча больше не
// публикуются: до конца аренды остаётся запас на запись итогов.
func (r *Relay) leaseBudget(claimedAt time.Time) time.Time {
	reserve := r.lease / 5
	if reserve > defaultCompleteTimeout {
		reserve = defaultCompleteTimeout
	}
	return claimedAt.Add(r.lease - reserve)
}

// Owner возвращает идентификатор аренды этого инстанса.
func (r *Relay) Owner() string { return r.owner }

// MaxRetries возвращает порог poison-сообщения.
func (r *Relay) MaxRetries() int { return r.maxRetries }

// Run выполняет цикл сразу, затем по таймеру до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return
	}

	r.logger.WithFields(log.Fields{
		"poll_interval": r.pollInterval.String(),
		"batch_size":    r.batchSize,
		"max_retries":   r.maxRetries,
	}).Info("outbox relay started")
	defer r.logger.Info("outbox relay stopped")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce захватывает один батч, публикует его и фиксирует итоги.
// Возвращает число строк, итог которых записан.
func (r *Relay) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	budget := r.leaseBudget(r.now())
	messages, err := r.repo.Claim(ctx, domain.OutboxClaim{
		Owner:      r.owner,
		Limit:      r.batchSize,
		MaxRetries: r.maxRetries,
		Lease:      r.lease,
	})
	if err != nil {
		r.logger.WithError(err).Warn("failed to claim outbox messages")
		return 0
	}
	if len(messages) == 0 {
		r.refreshBacklogMetrics(ctx)
		return 0
	}

	results := make([]domain.OutboxMessage, 0, len(messages))
	for i, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		// Остаток батча вернётся в очередь, когда Complete снимет аренду.
		if r.now().Add(r.publishTimeout).After(budget) {
			r.logger.WithField("left", len(messages)-i).Warn("outbox lease budget exhausted, deferring rest of batch")
			break
		}
		result, done := r.handle(ctx, msg)
		if !done {
			break
		}
		results = append(results, result)
	}

	// Итоги фиксируются и после отмены ctx.
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultCompleteTimeout)
	defer cancel()
	written, err := r.repo.Complete(completeCtx, r.owner, results)
	if err != nil {
		r.logger.WithError(err).WithField("results", len(results)).Error("failed to complete outbox batch")
		return 0
	}
	if len(written) < len(results) {
		r.logger.WithFields(log.Fields{
			"results": len(results),
			"written": len(written),
		}).Warn("outbox lease lost before complete, foreign rows skipped")
	}

	isWritten := make(map[string]bool, len(written))
	for _, id := range written {
		isWritten[id] = true
	}
	for _, msg := range results {
		if isWritten[msg.ID] && msg.ProcessedAt == nil && msg.RetryCount >= r.maxRetries {
			r.deadLetter(completeCtx, msg)
		}
	}

	r.refreshBacklogMetrics(completeCtx)
	return len(written)
}

// handle обрабатывает одну строку. done=false означает, что обработка
// прервана остановкой relay и итог строки не фиксируется.
func (r *Relay) handle(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, bool) {
	entry := r.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"aggregate_id": msg.AggregateID,
		"event_type":   msg.Type,
	})

	event, err := domain.UnmarshalEvent(msg.Type, msg.Content)
	if errors.Is(err, domain.ErrUnknownEventType) {
		entry.Warn("unknown outbox event type, marking processed")
		outboxPublishAttempts.WithLabelValues(resultSkipped).Inc()
		return r.processed(msg), true
	}
	if err != nil {
		entry.WithError(err).Error("corrupted outbox message")
		outboxPublishAttempts.WithLabelValues(resultCorrupted).Inc()
		return r.failed(msg, err), true
	}

	integration, ok, err := MapIntegrationEvent(event)
	if err != nil {
		entry.WithError(err).Error("failed to map outbox event")
		outboxPublishAttempts.WithLabelValues(resultFailed).Inc()
		return r.failed(msg, err), true
	}
	if !ok {
		outboxPublishAttempts.WithLabelValues(resultSkipped).Inc()
		return r.processed(msg), true
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	err = r.publisher.Publish(publishCtx, integration)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			entry.WithError(err).Info("publish interrupted by shutdown")
			return msg, false
		}
		entry.WithError(err).WithField("retry_count", msg.RetryCount+1).Warn("outbox publish failed")
		outboxPublishAttempts.WithLabelValues(resultFailed).Inc()
		return r.failed(msg, err), true
	}

	outboxPublishAttempts.WithLabelValues(resultSent).Inc()
	return r.processed(msg), true
}

func (r *Relay) processed(msg domain.OutboxMessage) domain.OutboxMessage {
	now := r.now()
	msg.ProcessedAt = &now
	msg.Error = ""
	return msg
}

func (r *Relay) failed(msg domain.OutboxMessage, err error) domain.OutboxMessage {
	msg.RetryCount++
	msg.Error = err.Error()
	return msg
}

func (r *Relay) deadLetter(ctx context.Context, msg domain.OutboxMessage) {
	outboxDeadLetters.Inc()
	outboxPublishAttempts.WithLabelValues(resultDeadLetter).Inc()
	r.logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"aggregate_id": msg.AggregateID,
		"event_type":   msg.Type,
		"retry_count":  msg.RetryCount,
		"last_error":   msg.Error,
	}).Error("outbox message exhausted retries")

	if r.deadLetters == nil {
		return
	}

	content := json.RawMessage(msg.Content)
	if !json.Valid(msg.Content) {
		quoted, _ := json.Marshal(string(msg.Content))
		content = quoted
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	err := r.deadLetters.PublishDeadLetter(publishCtx, messaging.DeadLetter{
		OutboxID:       msg.ID,
		AggregateID:    msg.AggregateID,
		EventType:      string(msg.Type),
		Content:        content,
		Error:          msg.Error,
		RetryCount:     msg.RetryCount,
		DeadLetteredAt: r.now(),
	})
	if err != nil {
		r.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to publish dead letter")
		outboxPublishAttempts.WithLabelValues(resultDLQFailed).Inc()
	}
}

func (r *Relay) refreshBacklogMetrics(ctx context.Context) {
	stats, err := r.repo.Stats(ctx, r.maxRetries)
	if err != nil {
		r.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}

	age := r.now().Sub(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}
