package bot

import (
	"fmt"
	"sync"
	"time"

	"cyclebot/internal/models"
)

// CancelExpiryDuration - срок, в течение которого повторный запрос отмены
// одного ордера считается дублем и подавляется
const CancelExpiryDuration = 60 * time.Second

// DuplicateOrderError - попытка начать отслеживание ордера с занятым id.
// Возвращается и при полностью совпадающих параметрах: один client_order_id
// соответствует ровно одному жизненному циклу.
type DuplicateOrderError struct {
	ClientOrderID string
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %s is already tracked", e.ClientOrderID)
}

// MarketPair - адрес ордера: рынок и торговая пара
type MarketPair struct {
	Market      string
	TradingPair string
}

// OrderTracker хранит все in-flight ордера экземпляра стратегии.
//
// Обязанности:
// - учёт записей ордеров от размещения до терминального события;
// - O(1) маршрутизация client_order_id → (рынок, пара) для входящих событий;
// - подавление дублей запросов отмены (CheckAndTrackCancel).
//
// Записи мутирует только диспетчер событий, и только через UpdateOrder -
// под блокировкой записи, потому что снапшоты ActiveOrders читает API-слой
// из других горутин.
type OrderTracker struct {
	mu sync.RWMutex

	orders  map[string]*models.OrderRecord
	routing map[string]MarketPair

	// Запрошенные отмены: id → время запроса. Чистится лениво:
	// записи старше CancelExpiryDuration удаляются при следующем обращении.
	cancels      map[string]time.Time
	cancelExpiry time.Duration
}

// NewOrderTracker создаёт пустой трекер ордеров
func NewOrderTracker() *OrderTracker {
	return &OrderTracker{
		orders:       make(map[string]*models.OrderRecord),
		routing:      make(map[string]MarketPair),
		cancels:      make(map[string]time.Time),
		cancelExpiry: CancelExpiryDuration,
	}
}

// NewOrderTrackerWithExpiry создаёт трекер с нестандартным сроком
// подавления повторных отмен
func NewOrderTrackerWithExpiry(expiry time.Duration) *OrderTracker {
	t := NewOrderTracker()
	if expiry > 0 {
		t.cancelExpiry = expiry
	}
	return t
}

// StartTracking начинает отслеживание ордера.
// Возвращает DuplicateOrderError, если id уже занят.
func (t *OrderTracker) StartTracking(order *models.OrderRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.orders[order.ClientOrderID]; exists {
		return &DuplicateOrderError{ClientOrderID: order.ClientOrderID}
	}

	t.orders[order.ClientOrderID] = order
	t.routing[order.ClientOrderID] = MarketPair{Market: order.Market, TradingPair: order.TradingPair}
	TrackedOrders.Set(float64(len(t.orders)))
	return nil
}

// StopTracking прекращает отслеживание; неизвестный id - no-op.
// Маршрут остаётся до StopTracking, дальше события этого ордера
// становятся неизвестными и отбрасываются потребителями.
func (t *OrderTracker) StopTracking(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.orders, clientOrderID)
	delete(t.routing, clientOrderID)
	TrackedOrders.Set(float64(len(t.orders)))
}

// GetOrder возвращает запись ордера по id
func (t *OrderTracker) GetOrder(clientOrderID string) (*models.OrderRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[clientOrderID]
	return o, ok
}

// UpdateOrder мутирует запись ордера под блокировкой записи.
// fn выполняется с захваченным mu, поэтому не должен обращаться к трекеру.
// Возвращает false для неизвестного id (fn не вызывается).
func (t *OrderTracker) UpdateOrder(clientOrderID string, fn func(*models.OrderRecord)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[clientOrderID]
	if !ok {
		return false
	}
	fn(o)
	return true
}

// Route возвращает (рынок, пара) ордера за O(1)
func (t *OrderTracker) Route(clientOrderID string) (MarketPair, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mp, ok := t.routing[clientOrderID]
	return mp, ok
}

// ActiveOrders возвращает снапшот всех отслеживаемых ордеров
func (t *OrderTracker) ActiveOrders() []*models.OrderRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*models.OrderRecord, 0, len(t.orders))
	for _, o := range t.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out
}

// Count возвращает число отслеживаемых ордеров
func (t *OrderTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}

// CheckAndTrackCancel регистрирует намерение отменить ордер.
//
// Возвращает true, если отмену следует отправить (первый запрос либо
// прошлый запрос старше cancelExpiry). false - отмена уже в полёте,
// повторную отправку нужно подавить.
func (t *OrderTracker) CheckAndTrackCancel(clientOrderID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Ленивый GC: выбрасываем протухшие записи
	for id, ts := range t.cancels {
		if now.Sub(ts) >= t.cancelExpiry {
			delete(t.cancels, id)
		}
	}

	if ts, ok := t.cancels[clientOrderID]; ok && now.Sub(ts) < t.cancelExpiry {
		return false
	}
	t.cancels[clientOrderID] = now
	return true
}

// ForgetCancel снимает запись об отмене (ордер достиг терминального статуса)
func (t *OrderTracker) ForgetCancel(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cancels, clientOrderID)
}
