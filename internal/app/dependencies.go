package app

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/health"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
	"github.com/vladislavdragonenkov/orderflow/internal/service/cart"
	"github.com/vladislavdragonenkov/orderflow/internal/service/catalog"
	"github.com/vladislavdragonenkov/orderflow/internal/service/orders"
	"github.com/vladislavdragonenkov/orderflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderflow/internal/version"
)

// Dependencies содержит собранный граф зависимостей приложения.
type Dependencies struct {
	Orders    domain.OrderRepository
	Outbox    domain.OutboxRepository
	Commands  orders.Commands
	Publisher messaging.Publisher
	Relay     *outbox.Relay
	Reporter  *outbox.DeadLetterReporter
	Health    *health.Handler

	storage    *storage
	publishing *publishing
	logger     *log.Entry
}

// NewDependencies создаёт хранилище, приёмники событий, клиентов
// корзины и каталога, командный сервис и outbox relay.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	pub, err := initPublishing(cfg, logger)
	if err != nil {
		_ = store.close()
		return nil, err
	}

	deps := &Dependencies{
		Orders:     store.orders,
		Outbox:     store.outbox,
		Publisher:  pub.publisher,
		storage:    store,
		publishing: pub,
		logger:     logger,
	}

	commands, err := newCommands(cfg, store.orders, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Commands = commands

	relayOpts := []outbox.Option{
		outbox.WithLogger(log.WithField("component", "outbox-relay")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxRetries(cfg.OutboxMaxRetries),
		outbox.WithPublishTimeout(cfg.OutboxPublishTimeout),
		outbox.WithLease(cfg.OutboxLease),
	}
	if pub.deadLetters != nil {
		relayOpts = append(relayOpts, outbox.WithDeadLetterPublisher(pub.deadLetters))
	}
	deps.Relay = outbox.NewRelay(store.outbox, pub.publisher, relayOpts...)
	deps.Reporter = outbox.NewDeadLetterReporter(store.outbox, cfg.OutboxMaxRetries, cfg.OutboxDLQReportSpec,
		log.WithField("component", "outbox-dlq-reporter"))

	deps.Health = health.NewHandler(version.Short())
	deps.Health.RegisterChecker("storage", health.NewCriticalChecker("storage", store.ping))
	for name, ping := range pub.pings {
		deps.Health.RegisterChecker("publisher_"+name, health.NewOptionalChecker("publisher_"+name, ping))
	}

	return deps, nil
}

func newCommands(cfg Config, repo domain.OrderRepository, logger *log.Entry) (orders.Commands, error) {
	guardCfg := orders.DefaultGuardConfig()
	guardCfg.Timeout = cfg.UpstreamTimeout

	commandMetrics := metrics.NewOrderMetrics()
	opts := []orders.Option{
		orders.WithLogger(log.WithField("component", "order-commands")),
		orders.WithGuardConfig(guardCfg),
		orders.WithUpstreamRecorder(commandMetrics),
	}

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	if cfg.CatalogURL != "" {
		client, err := catalog.NewClient(cfg.CatalogURL, httpClient, log.WithField("component", "catalog-client"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, orders.WithCatalog(client))
	} else {
		logger.Warn("catalog url is not configured, stock checks are skipped")
	}
	if cfg.CartURL != "" {
		client, err := cart.NewClient(cfg.CartURL, httpClient, log.WithField("component", "cart-client"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, orders.WithCart(client))
	} else {
		logger.Warn("cart url is not configured, carts are not cleared")
	}

	var commands orders.Commands = orders.NewService(repo, opts...)
	commands = orders.NewInstrumentedCommands(commands, commandMetrics)
	commands = orders.NewLoggingCommands(commands, log.WithField("component", "order-commands"))
	return commands, nil
}

// Close освобождает брокеры и хранилище.
func (d *Dependencies) Close() {
	if d.publishing != nil {
		d.publishing.close(d.logger)
	}
	if d.storage != nil {
		if err := d.storage.close(); err != nil {
			d.logger.WithError(err).Warn("failed to close storage")
		}
	}
}
