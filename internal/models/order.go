package models

import "time"

// Статусы ордера в трекере
//
// Переходы только вперёд:
// PENDING → OPEN → PARTIALLY_FILLED → FILLED
//                              ↘ CANCELED | EXPIRED | FAILED
const (
	OrderStatusPending         = "PENDING"
	OrderStatusOpen            = "OPEN"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusFailed          = "FAILED"
	OrderStatusExpired         = "EXPIRED"
)

// OrderRecord представляет лимитный ордер, размещённый ботом и отслеживаемый трекером.
//
// ClientOrderID глобально уникален в пределах экземпляра стратегии.
// Запись создаётся при размещении ордера, мутируется ТОЛЬКО диспетчером событий
// и удаляется из трекера при достижении терминального статуса.
type OrderRecord struct {
	ClientOrderID  string    `json:"client_order_id" db:"client_order_id"`
	Market         string    `json:"market" db:"market"`
	TradingPair    string    `json:"trading_pair" db:"trading_pair"` // BTC-USDT
	IsBuy          bool      `json:"is_buy" db:"is_buy"`
	BaseAsset      string    `json:"base_asset" db:"base_asset"`
	QuoteAsset     string    `json:"quote_asset" db:"quote_asset"`
	Price          float64   `json:"price" db:"price"`
	Quantity       float64   `json:"quantity" db:"quantity"`
	FilledQuantity float64   `json:"filled_quantity" db:"filled_quantity"` // инвариант: ≤ Quantity
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	Status         string    `json:"status" db:"status"`
}

// IsTerminal возвращает true для статусов, после которых ордер больше не меняется
func IsTerminal(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusFailed, OrderStatusExpired:
		return true
	}
	return false
}

// IsDone возвращает true, если ордер в терминальном статусе
func (o *OrderRecord) IsDone() bool {
	return IsTerminal(o.Status)
}

// RemainingQuantity возвращает неисполненный остаток ордера
func (o *OrderRecord) RemainingQuantity() float64 {
	rem := o.Quantity - o.FilledQuantity
	if rem < 0 {
		return 0
	}
	return rem
}

// Less задаёт детерминированный порядок записей: по цене, при равенстве —
// лексикографически по ClientOrderID. Используется при агрегации собственных
// ордеров бота в отсортированной структуре по сторонам книги.
func (o *OrderRecord) Less(other *OrderRecord) bool {
	if o.Price != other.Price {
		return o.Price < other.Price
	}
	return o.ClientOrderID < other.ClientOrderID
}

// Equal сравнивает записи по ключу (цена + id)
func (o *OrderRecord) Equal(other *OrderRecord) bool {
	return o.Price == other.Price && o.ClientOrderID == other.ClientOrderID
}
