package bot

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/internal/repository"
)

// OrderWriter - хранилище журнала ордеров (реализуется OrderRepository)
type OrderWriter interface {
	Create(order *models.OrderRecord) error
	UpdateFill(clientOrderID, status string, filledQuantity float64) error
}

// journalEntry - накопленное состояние одного ордера в журнале
type journalEntry struct {
	quantity float64
	filled   float64
}

// OrderJournal - делегат диспетчера, пишущий жизненный цикл ордеров в БД.
//
// Делегаты вызываются из горутины цикла стратегии, поэтому OnOrderEvent
// только ставит событие в очередь: запись в БД идёт в отдельной горутине
// Run и никогда не блокирует ядро. Переполнение очереди теряет событие
// журнала (не ордер), что логируется.
type OrderJournal struct {
	writer OrderWriter
	logger *zap.Logger

	queue   chan exchange.OrderEvent
	entries map[string]*journalEntry // только горутина Run
}

// NewOrderJournal создаёт журнальный делегат
func NewOrderJournal(writer OrderWriter, logger *zap.Logger) *OrderJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderJournal{
		writer:  writer,
		logger:  logger,
		queue:   make(chan exchange.OrderEvent, 1024),
		entries: make(map[string]*journalEntry),
	}
}

// Name возвращает имя делегата
func (j *OrderJournal) Name() string { return "order-journal" }

// OnOrderEvent ставит событие в очередь записи, не блокируя вызывающего
func (j *OrderJournal) OnOrderEvent(ev exchange.OrderEvent) {
	select {
	case j.queue <- ev:
	default:
		j.logger.Warn("order journal queue full, event dropped",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.ClientOrderID))
	}
}

// Run пишет события в хранилище до отмены контекста
func (j *OrderJournal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-j.queue:
			j.persist(ev)
		}
	}
}

// persist применяет одно событие к журналу
func (j *OrderJournal) persist(ev exchange.OrderEvent) {
	switch ev.Type {
	case exchange.EventOrderCreated:
		base, quote := models.SplitTradingPair(ev.TradingPair)
		rec := &models.OrderRecord{
			ClientOrderID: ev.ClientOrderID,
			Market:        ev.Market,
			TradingPair:   ev.TradingPair,
			IsBuy:         ev.IsBuy,
			BaseAsset:     base,
			QuoteAsset:    quote,
			Price:         ev.Price,
			Quantity:      ev.Amount,
			Status:        models.OrderStatusOpen,
			CreatedAt:     ev.Timestamp,
		}
		if err := j.writer.Create(rec); err != nil {
			j.logger.Error("journal insert failed",
				zap.String("order_id", ev.ClientOrderID), zap.Error(err))
			return
		}
		j.entries[ev.ClientOrderID] = &journalEntry{quantity: ev.Amount}

	case exchange.EventOrderFilled:
		entry := j.entries[ev.ClientOrderID]
		filled := ev.FilledAmount
		status := models.OrderStatusPartiallyFilled
		if entry != nil {
			entry.filled += ev.FilledAmount
			if entry.filled > entry.quantity {
				entry.filled = entry.quantity
			}
			filled = entry.filled
			if entry.quantity > 0 && filled >= entry.quantity {
				status = models.OrderStatusFilled
			}
		}
		j.update(ev.ClientOrderID, status, filled)

	case exchange.EventBuyOrderCompleted, exchange.EventSellOrderCompleted:
		filled := 0.0
		if entry := j.entries[ev.ClientOrderID]; entry != nil {
			filled = entry.quantity
		}
		j.update(ev.ClientOrderID, models.OrderStatusFilled, filled)
		delete(j.entries, ev.ClientOrderID)

	case exchange.EventOrderCanceled:
		j.finish(ev.ClientOrderID, models.OrderStatusCanceled)

	case exchange.EventOrderExpired:
		j.finish(ev.ClientOrderID, models.OrderStatusExpired)

	case exchange.EventOrderFailed:
		j.finish(ev.ClientOrderID, models.OrderStatusFailed)
	}
}

// finish закрывает запись терминальным статусом, сохраняя накопленный fill
func (j *OrderJournal) finish(clientOrderID, status string) {
	filled := 0.0
	if entry := j.entries[clientOrderID]; entry != nil {
		filled = entry.filled
	}
	j.update(clientOrderID, status, filled)
	delete(j.entries, clientOrderID)
}

func (j *OrderJournal) update(clientOrderID, status string, filled float64) {
	err := j.writer.UpdateFill(clientOrderID, status, filled)
	if err == nil {
		return
	}
	if errors.Is(err, repository.ErrOrderNotFound) {
		// Запись могла не попасть в журнал (переполнение очереди, рестарт)
		j.logger.Debug("journal update for unknown order",
			zap.String("order_id", clientOrderID))
		return
	}
	j.logger.Error("journal update failed",
		zap.String("order_id", clientOrderID), zap.Error(err))
}
