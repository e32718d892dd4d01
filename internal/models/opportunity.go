package models

import "fmt"

// Направления треугольного цикла
const (
	DirectionClockwise        = "clockwise"
	DirectionCounterClockwise = "counterclockwise"
)

// ProposedOrder - одна нога предложенного арбитражного цикла.
//
// Market идентифицирует коннектор (биржу), на котором размещается нога.
type ProposedOrder struct {
	Market      string  `json:"market"`
	TradingPair string  `json:"trading_pair"`
	IsBuy       bool    `json:"is_buy"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
}

// BaseAsset возвращает базовый актив ноги (часть пары до дефиса)
func (p ProposedOrder) BaseAsset() string {
	base, _ := SplitTradingPair(p.TradingPair)
	return base
}

// QuoteAsset возвращает котируемый актив ноги
func (p ProposedOrder) QuoteAsset() string {
	_, quote := SplitTradingPair(p.TradingPair)
	return quote
}

// SplitTradingPair разбивает пару вида BTC-USDT на (BTC, USDT).
// Для пары без дефиса возвращает ("", "")
func SplitTradingPair(pair string) (base, quote string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '-' {
			return pair[:i], pair[i+1:]
		}
	}
	return "", ""
}

// ArbitrageCycle - предложенный цикл из 2-3 коррелированных ордеров.
//
// Для треугольного цикла три пары обязаны замыкаться в кольцо ровно
// из трёх различных активов (проверяется Validate).
type ArbitrageCycle struct {
	Orders     []ProposedOrder `json:"orders"`
	Direction  string          `json:"direction"` // clockwise / counterclockwise
	CanExecute bool            `json:"can_execute"`
}

// Validate проверяет структурную корректность цикла.
//
// Для N=3 проверяется замкнутость: три пары образуют кольцо над ровно
// тремя различными активами. Для N=2 достаточно двух ног.
func (c *ArbitrageCycle) Validate() error {
	n := len(c.Orders)
	if n < 2 || n > 3 {
		return fmt.Errorf("cycle must contain 2 or 3 legs, got %d", n)
	}

	for i, o := range c.Orders {
		if o.TradingPair == "" || o.Market == "" {
			return fmt.Errorf("leg %d: empty market or trading pair", i)
		}
		base, quote := SplitTradingPair(o.TradingPair)
		if base == "" || quote == "" {
			return fmt.Errorf("leg %d: malformed trading pair %q", i, o.TradingPair)
		}
		if o.Amount < 0 || o.Price < 0 {
			return fmt.Errorf("leg %d: negative price or amount", i)
		}
	}

	if n == 3 {
		// Собираем множество активов всех трёх пар
		assets := map[string]int{}
		for _, o := range c.Orders {
			base, quote := SplitTradingPair(o.TradingPair)
			assets[base]++
			assets[quote]++
		}
		// В замкнутом кольце каждый актив встречается ровно в двух парах
		if len(assets) != 3 {
			return fmt.Errorf("triangular cycle must span exactly 3 assets, got %d", len(assets))
		}
		for asset, cnt := range assets {
			if cnt != 2 {
				return fmt.Errorf("asset %s appears in %d pairs, want 2 (cycle not closed)", asset, cnt)
			}
		}
	}

	return nil
}

// Состояния ноги активного цикла
const (
	LegNotPlaced       = "NOT_PLACED"
	LegPlaced          = "PLACED"
	LegPartiallyFilled = "PARTIALLY_FILLED"
	LegFilled          = "FILLED"
	LegFailed          = "FAILED"
	LegCanceled        = "CANCELED"
)

// LegResolved возвращает true, если нога достигла финального состояния
func LegResolved(state string) bool {
	switch state {
	case LegFilled, LegFailed, LegCanceled:
		return true
	}
	return false
}
