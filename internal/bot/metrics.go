package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах
// - Анализ производительности в production

// ============ Метрики латентности ============

// TickLatency - время обработки одного тика стратегии
var TickLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "tick_latency_ms",
		Help:      "Time to process one strategy tick in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	},
)

// EventDispatchLatency - время диспетчеризации одного события ордера
var EventDispatchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "event_dispatch_latency_ms",
		Help:      "Time to dispatch one order event in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"event_type"},
)

// ============ Счётчики событий ============

// EventsProcessed - количество обработанных событий по типам
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "events_processed_total",
		Help:      "Total number of processed order events",
	},
	[]string{"type"},
)

// StaleEventsDropped - события по неизвестным (уже завершённым) ордерам
var StaleEventsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "stale_events_dropped_total",
		Help:      "Order events dropped because the order is no longer tracked",
	},
	[]string{"type"},
)

// CallbackPanics - паники, перехваченные в callback'ах стратегии
var CallbackPanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "callback_panics_total",
		Help:      "Panics recovered in strategy callbacks",
	},
	[]string{"event_type"},
)

// ============ Метрики циклов ============

// CyclesTotal - количество завершённых циклов по результатам
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "execution",
		Name:      "cycles_total",
		Help:      "Total number of arbitrage cycles by result",
	},
	[]string{"result"}, // complete, reversed, aborted
)

// LegsFailed - накопительный счётчик провалившихся ног
var LegsFailed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "execution",
		Name:      "legs_failed_total",
		Help:      "Cumulative number of failed cycle legs",
	},
)

// CorrectiveOrders - корректирующие ордера разворота
var CorrectiveOrders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "execution",
		Name:      "corrective_orders_total",
		Help:      "Corrective orders placed during reversal",
	},
	[]string{"mode"}, // exact, all_in
)

// ExecutionState - текущее состояние трекера исполнения
var ExecutionState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "cyclebot",
		Subsystem: "execution",
		Name:      "state",
		Help:      "Execution tracker state (1 = current state)",
	},
	[]string{"state"},
)

// TrackedOrders - количество отслеживаемых ордеров
var TrackedOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "tracked_orders",
		Help:      "Current number of tracked in-flight orders",
	},
)

// MarketBalance - балансы по рынкам и активам
var MarketBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "cyclebot",
		Subsystem: "market",
		Name:      "balance",
		Help:      "Market balance by asset",
	},
	[]string{"market", "asset"},
)

// ============ Метрики производительности ============

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (items dropped)",
	},
	[]string{"buffer"}, // notification, inbox
)

// BufferBacklog - заполненность буферов
var BufferBacklog = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "cyclebot",
		Subsystem: "strategy",
		Name:      "buffer_backlog",
		Help:      "Current channel backlog by buffer",
	},
	[]string{"buffer"},
)

// ============ Вспомогательные функции ============

// RecordEvent записывает обработанное событие
func RecordEvent(eventType string, latencyMs float64) {
	EventsProcessed.WithLabelValues(eventType).Inc()
	EventDispatchLatency.WithLabelValues(eventType).Observe(latencyMs)
}

// RecordCycle записывает завершённый цикл
func RecordCycle(result string) {
	CyclesTotal.WithLabelValues(result).Inc()
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// RecordBufferBacklog записывает заполненность буфера
func RecordBufferBacklog(bufferName string, capacity, length int) {
	_ = capacity
	BufferBacklog.WithLabelValues(bufferName).Set(float64(length))
}

// SetExecutionState выставляет gauge текущего состояния трекера
func SetExecutionState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		ExecutionState.WithLabelValues(s).Set(v)
	}
}
