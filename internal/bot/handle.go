package bot

import (
	"context"

	"cyclebot/internal/exchange"
)

// ObserverHandle - хэндл коннектора только для чтения.
//
// Выдаётся компонентам-наблюдателям (API-слой, делегаты событий): читать
// цены, балансы и правила можно, размещать и отменять ордера - нет. Право
// торговать остаётся у владельца хэндла - горутины цикла стратегии; запрет
// обеспечивается самим хэндлом, а не договорённостью.
type ObserverHandle struct {
	exchange.MarketConnector
}

// NewObserverHandle оборачивает коннектор в хэндл наблюдателя
func NewObserverHandle(conn exchange.MarketConnector) *ObserverHandle {
	return &ObserverHandle{MarketConnector: conn}
}

// PlaceLimitOrder всегда возвращает IllegalOperationError
func (h *ObserverHandle) PlaceLimitOrder(ctx context.Context, tradingPair string, isBuy bool, amount, price float64) (string, error) {
	return "", &IllegalOperationError{Op: "place order through observer handle"}
}

// CancelOrder всегда возвращает IllegalOperationError
func (h *ObserverHandle) CancelOrder(ctx context.Context, tradingPair, clientOrderID string) error {
	return &IllegalOperationError{Op: "cancel order through observer handle"}
}

// Close у наблюдателя - no-op: жизненным циклом коннектора владеет стратегия
func (h *ObserverHandle) Close() error { return nil }

// ObserverHandles оборачивает карту коннекторов в хэндлы наблюдателей
func ObserverHandles(conns map[string]exchange.MarketConnector) map[string]exchange.MarketConnector {
	out := make(map[string]exchange.MarketConnector, len(conns))
	for name, conn := range conns {
		out[name] = NewObserverHandle(conn)
	}
	return out
}
