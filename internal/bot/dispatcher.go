package bot

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

// IllegalOperationError - операция, запрещённая в текущем контексте
// (например, изменение списка делегатов во время диспетчеризации)
type IllegalOperationError struct {
	Op string
}

func (e *IllegalOperationError) Error() string {
	return fmt.Sprintf("illegal operation: %s", e.Op)
}

// EventDelegate - потребитель событий ордеров (стратегия, журнал сделок)
type EventDelegate interface {
	Name() string
	OnOrderEvent(ev exchange.OrderEvent)
}

// EventDispatcher доставляет события жизненного цикла ордеров.
//
// Обработка двухфазная:
//  1. Безусловный учёт в OrderTracker - выполняется ВСЕГДА, даже если
//     делегаты падают. Книги учёта не должны зависеть от кода стратегии.
//  2. Доставка делегатам, каждый изолирован recover'ом: паника одного
//     делегата не мешает остальным и не роняет цикл стратегии.
//
// Вызывается ТОЛЬКО из горутины цикла стратегии - внутренних блокировок
// нет, locked защищает от реентерабельных мутаций из делегатов.
//
// Устойчивость к перестановкам:
//   - событие неизвестного ордера (уже завершён и снят с учёта) отбрасывается,
//     что даёт идемпотентность повторных терминальных событий;
//   - created после fill не понижает статус записи.
type EventDispatcher struct {
	tracker   *OrderTracker
	logger    *zap.Logger
	delegates []EventDelegate
	locked    bool
}

// NewEventDispatcher создаёт диспетчер поверх трекера ордеров
func NewEventDispatcher(tracker *OrderTracker, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{
		tracker: tracker,
		logger:  logger,
	}
}

// AddDelegate регистрирует делегата. Запрещено во время диспетчеризации.
func (d *EventDispatcher) AddDelegate(del EventDelegate) error {
	if d.locked {
		return &IllegalOperationError{Op: "add delegate during dispatch"}
	}
	for _, existing := range d.delegates {
		if existing.Name() == del.Name() {
			return fmt.Errorf("delegate %s already registered", del.Name())
		}
	}
	d.delegates = append(d.delegates, del)
	return nil
}

// RemoveDelegate снимает делегата. Запрещено во время диспетчеризации.
func (d *EventDispatcher) RemoveDelegate(name string) error {
	if d.locked {
		return &IllegalOperationError{Op: "remove delegate during dispatch"}
	}
	for i, del := range d.delegates {
		if del.Name() == name {
			d.delegates = append(d.delegates[:i], d.delegates[i+1:]...)
			return nil
		}
	}
	return nil
}

// Dispatch обрабатывает одно событие ордера.
//
// Возвращает true, если событие относилось к известному ордеру.
func (d *EventDispatcher) Dispatch(ev exchange.OrderEvent) bool {
	start := time.Now()

	// Фаза 1: безусловный учёт. Мутация идёт через UpdateOrder - под
	// блокировкой записи трекера, конкурентно со снапшотами API-слоя.
	known := d.tracker.UpdateOrder(ev.ClientOrderID, func(order *models.OrderRecord) {
		d.applyBookkeeping(order, ev)
	})
	if !known {
		// Ордер уже завершён либо чужой: дубль терминального события
		// или перестановка after-the-fact. Тихо отбрасываем.
		StaleEventsDropped.WithLabelValues(ev.Type).Inc()
		return false
	}

	// Фаза 2: делегаты, каждый под recover
	d.locked = true
	for _, del := range d.delegates {
		d.invokeDelegate(del, ev)
	}
	d.locked = false

	// Фаза 3: терминальные события снимают ордер с учёта.
	// Повторный терминал после этого попадёт в ветку !known выше.
	if exchange.TerminalEvent(ev.Type) {
		d.tracker.StopTracking(ev.ClientOrderID)
		d.tracker.ForgetCancel(ev.ClientOrderID)
	}

	RecordEvent(ev.Type, float64(time.Since(start).Microseconds())/1000.0)
	return true
}

// applyBookkeeping мутирует запись ордера по типу события
func (d *EventDispatcher) applyBookkeeping(order *models.OrderRecord, ev exchange.OrderEvent) {
	switch ev.Type {
	case exchange.EventOrderCreated:
		// Не понижаем статус, если fill уже пришёл раньше created
		if order.Status == models.OrderStatusPending {
			order.Status = models.OrderStatusOpen
		}

	case exchange.EventOrderFilled:
		order.FilledQuantity += ev.FilledAmount
		if order.FilledQuantity > order.Quantity {
			order.FilledQuantity = order.Quantity
		}
		if !order.IsDone() && order.FilledQuantity < order.Quantity {
			order.Status = models.OrderStatusPartiallyFilled
		}

	case exchange.EventBuyOrderCompleted, exchange.EventSellOrderCompleted:
		order.FilledQuantity = order.Quantity
		order.Status = models.OrderStatusFilled

	case exchange.EventOrderCanceled:
		order.Status = models.OrderStatusCanceled

	case exchange.EventOrderExpired:
		order.Status = models.OrderStatusExpired

	case exchange.EventOrderFailed:
		order.Status = models.OrderStatusFailed

	default:
		d.logger.Warn("unknown order event type",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.ClientOrderID))
	}
}

// invokeDelegate вызывает делегата, перехватывая панику
func (d *EventDispatcher) invokeDelegate(del EventDelegate, ev exchange.OrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			CallbackPanics.WithLabelValues(ev.Type).Inc()
			d.logger.Error("delegate panicked",
				zap.String("delegate", del.Name()),
				zap.String("event_type", ev.Type),
				zap.String("order_id", ev.ClientOrderID),
				zap.Any("panic", r))
		}
	}()
	del.OnOrderEvent(ev)
}
