package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// OrderMetrics содержит метрики командной поверхности заказов.
type OrderMetrics struct {
	// Счётчики команд по результату
	commands *prometheus.CounterVec
	// Время выполнения команд
	commandDuration *prometheus.HistogramVec

	ordersCreated   prometheus.Counter
	ordersCancelled prometheus.Counter
	replays         prometheus.Counter

	// Вызовы корзины/каталога, закончившиеся «неизвестно»
	upstreamUnknown *prometheus.CounterVec
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		commands: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderflow_order_commands_total",
			Help: "Total number of order commands grouped by command and result",
		}, []string{"command", "result"}),
		commandDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderflow_order_command_duration_seconds",
			Help:    "Duration of order commands in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"command"}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_orders_created_total",
			Help: "Total number of orders created and confirmed",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		replays: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderflow_idempotent_replays_total",
			Help: "Total number of create commands answered from an existing order",
		}),
		upstreamUnknown: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderflow_upstream_unknown_total",
			Help: "Total number of cart/catalog calls that ended without an answer",
		}, []string{"upstream"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// CommandResult переводит ошибку команды в значение метки result.
func CommandResult(err error) string {
	if kind := domain.KindOf(err); kind != domain.KindNone {
		return string(kind)
	}
	return "ok"
}

// RecordCommand учитывает выполнение команды и её длительность.
func (m *OrderMetrics) RecordCommand(command string, err error, duration time.Duration) {
	m.commands.WithLabelValues(command, CommandResult(err)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *OrderMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordReplay увеличивает счётчик идемпотентных повторов.
func (m *OrderMetrics) RecordReplay() {
	m.replays.Inc()
}

// RecordUpstreamUnknown учитывает вызов корзины/каталога без ответа.
func (m *OrderMetrics) RecordUpstreamUnknown(upstream string) {
	m.upstreamUnknown.WithLabelValues(upstream).Inc()
}
