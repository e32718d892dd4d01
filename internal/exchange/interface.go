// Package exchange предоставляет унифицированный интерфейс коннекторов рынков.
package exchange

import (
	"context"
	"time"
)

// MarketConnector определяет унифицированный интерфейс коннектора одного рынка.
//
// Коннектор владеет книгой заявок своих пар, балансами аккаунта и жизненным
// циклом ордеров. События ордеров он отдаёт через Events(): канал читает
// ТОЛЬКО цикл стратегии, в своей горутине - коннектор не вызывает ничего
// в ядре напрямую.
type MarketConnector interface {
	// Name возвращает имя рынка (уникально в пределах экземпляра)
	Name() string

	// Ready возвращает true, когда книги и балансы синхронизированы
	// и коннектор готов принимать ордера
	Ready() bool

	// GetBalance возвращает полный баланс актива (включая зарезервированный)
	GetBalance(asset string) float64

	// GetAvailableBalance возвращает доступный баланс актива
	// (за вычетом зарезервированного под открытые ордера)
	GetAvailableBalance(asset string) float64

	// GetPriceForVolume возвращает средневзвешенную цену исполнения
	// рыночного ордера заданного объёма по текущей книге пары
	GetPriceForVolume(tradingPair string, isBuy bool, amount float64) (float64, error)

	// BestPrice возвращает лучшую цену стороны книги пары
	BestPrice(tradingPair string, isBuy bool) (float64, error)

	// PlaceLimitOrder размещает лимитный ордер и возвращает client_order_id.
	// Подтверждение и исполнение приходят асинхронно через Events().
	PlaceLimitOrder(ctx context.Context, tradingPair string, isBuy bool, amount, price float64) (string, error)

	// CancelOrder запрашивает отмену ордера. Результат (canceled-событие)
	// приходит асинхронно; повторный запрос отмены того же ордера безопасен.
	CancelOrder(ctx context.Context, tradingPair, clientOrderID string) error

	// TradingRules возвращает правила торговли пары (lot size, минимумы)
	TradingRules(tradingPair string) (TradingRules, error)

	// TakerFee возвращает комиссию тейкера пары в долях (0.001 = 0.1%)
	TakerFee(tradingPair string) float64

	// Events возвращает канал событий жизненного цикла ордеров
	Events() <-chan OrderEvent

	// Close освобождает ресурсы коннектора
	Close() error
}

// Типы событий жизненного цикла ордера.
//
// Порядок доставки НЕ гарантируется: completed может прийти раньше created
// (разные транспортные каналы биржи). Потребители обязаны быть устойчивы
// к любой перестановке и к дублям терминальных событий.
const (
	EventOrderCreated       = "ORDER_CREATED"
	EventOrderFilled        = "ORDER_FILLED" // частичное исполнение, инкремент
	EventBuyOrderCompleted  = "BUY_ORDER_COMPLETED"
	EventSellOrderCompleted = "SELL_ORDER_COMPLETED"
	EventOrderCanceled      = "ORDER_CANCELED"
	EventOrderExpired       = "ORDER_EXPIRED"
	EventOrderFailed        = "ORDER_FAILED"
)

// TerminalEvent возвращает true для событий, завершающих жизненный цикл ордера
func TerminalEvent(eventType string) bool {
	switch eventType {
	case EventBuyOrderCompleted, EventSellOrderCompleted,
		EventOrderCanceled, EventOrderExpired, EventOrderFailed:
		return true
	}
	return false
}

// OrderEvent - одно событие жизненного цикла ордера
type OrderEvent struct {
	Type          string    `json:"type"`
	Market        string    `json:"market"`
	ClientOrderID string    `json:"client_order_id"`
	TradingPair   string    `json:"trading_pair"`
	IsBuy         bool      `json:"is_buy"`
	Price         float64   `json:"price"`           // цена ордера (для created)
	Amount        float64   `json:"amount"`          // объём ордера (для created)
	FilledAmount  float64   `json:"filled_amount"`   // объём этого исполнения (для filled)
	FillPrice     float64   `json:"fill_price"`      // цена этого исполнения (для filled)
	Reason        string    `json:"reason,omitempty"` // причина для failed/canceled
	Timestamp     time.Time `json:"timestamp"`
}

// TradingRules содержит правила торговли пары
type TradingRules struct {
	TradingPair string  `json:"trading_pair"`
	LotSize     float64 `json:"lot_size"`     // шаг изменения объёма
	MinQty      float64 `json:"min_qty"`      // минимальный объём ордера
	MaxQty      float64 `json:"max_qty"`      // максимальный объём ордера (0 = без лимита)
	PriceStep   float64 `json:"price_step"`   // шаг изменения цены
	MinNotional float64 `json:"min_notional"` // минимальная сумма сделки в котируемом активе
}

// ConnectorError представляет ошибку коннектора
type ConnectorError struct {
	Market   string
	Code     string
	Message  string
	Original error
}

func (e *ConnectorError) Error() string {
	return e.Market + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ConnectorError) Unwrap() error {
	return e.Original
}
