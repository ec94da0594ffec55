package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// DefaultReportSpec задаёт расписание отчёта по poison-сообщениям.
const DefaultReportSpec = "@every 1m"

const reportTimeout = 10 * time.Second

var outboxPoisonRecords = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "orderflow_outbox_poison_records",
	Help: "Current number of outbox records that exhausted their retries.",
})

// DeadLetterReporter периодически считает poison-сообщения outbox.
type DeadLetterReporter struct {
	repo       domain.OutboxRepository
	maxRetries int
	spec       string
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *log.Entry
}

// NewDeadLetterReporter создаёт cron-задачу отчёта. Пустой spec означает DefaultReportSpec.
func NewDeadLetterReporter(repo domain.OutboxRepository, maxRetries int, spec string, logger *log.Entry) *DeadLetterReporter {
	if spec == "" {
		spec = DefaultReportSpec
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = log.WithField("component", "outbox-dlq-reporter")
	}
	return &DeadLetterReporter{
		repo:       repo,
		maxRetries: maxRetries,
		spec:       spec,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     logger,
	}
}

// Start регистрирует задачу и запускает планировщик.
func (r *DeadLetterReporter) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	if _, err := r.cron.AddFunc(r.spec, func() { r.ReportOnce(r.ctx) }); err != nil {
		r.cancel()
		return fmt.Errorf("schedule dead letter report %q: %w", r.spec, err)
	}

	r.cron.Start()
	r.logger.WithField("spec", r.spec).Info("outbox dead letter reporter started")
	return nil
}

// Stop останавливает планировщик и ждёт текущий запуск.
func (r *DeadLetterReporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.cron.Stop().Done()
	r.logger.Info("outbox dead letter reporter stopped")
}

// ReportOnce обновляет gauge и возвращает число poison-сообщений.
func (r *DeadLetterReporter) ReportOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	stats, err := r.repo.Stats(ctx, r.maxRetries)
	if err != nil {
		r.logger.WithError(err).Warn("failed to collect outbox dead letter stats")
		return 0
	}

	outboxPoisonRecords.Set(float64(stats.PoisonCount))
	if stats.PoisonCount > 0 {
		r.logger.WithFields(log.Fields{
			"poison_records": stats.PoisonCount,
			"max_retries":    r.maxRetries,
		}).Warn("outbox has messages that exhausted retries")
	}
	return stats.PoisonCount
}
