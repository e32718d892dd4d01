package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyclebot/internal/book"
	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// PaperConfig - конфигурация симулируемого коннектора
type PaperConfig struct {
	Name            string
	BookMode        string // book.ModeCentralized | book.ModeDEX
	InitialBalances map[string]float64
	Rules           map[string]TradingRules // по торговым парам
	Fees            map[string]float64      // комиссия тейкера по парам, в долях
	EventBuffer     int                     // размер буфера канала событий
}

// paperOrder - внутреннее состояние ордера симулятора
type paperOrder struct {
	clientOrderID string
	tradingPair   string
	isBuy         bool
	price         float64
	amount        float64
	filled        float64
	reserved      float64 // зарезервировано под ордер (quote для buy, base для sell)
}

// PaperConnector - симулируемый рынок для paper-трейдинга и тестов.
//
// Исполняет лимитные ордера против собственной книги: доступная ликвидность
// снимается сразу при размещении, остаток встаёт в книгу и исполняется,
// когда входящий дифф пересекает его цену. События жизненного цикла
// доставляются через буферизованный канал в том же порядке, в котором
// симулятор их породил.
type PaperConnector struct {
	name   string
	logger *zap.Logger

	mu       sync.RWMutex
	balances map[string]float64 // полный баланс по активам
	reserved map[string]float64 // зарезервировано под открытые ордера
	books    map[string]*book.Book
	rules    map[string]TradingRules
	fees     map[string]float64
	orders   map[string]*paperOrder
	updateID int64

	events chan OrderEvent
	closed chan struct{}
	once   sync.Once
}

// NewPaperConnector создаёт симулируемый коннектор
func NewPaperConnector(cfg PaperConfig, logger *zap.Logger) *PaperConnector {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	balances := make(map[string]float64, len(cfg.InitialBalances))
	for asset, amount := range cfg.InitialBalances {
		balances[asset] = amount
	}

	p := &PaperConnector{
		name:     cfg.Name,
		logger:   logger.With(zap.String("market", cfg.Name)),
		balances: balances,
		reserved: make(map[string]float64),
		books:    make(map[string]*book.Book),
		rules:    make(map[string]TradingRules),
		fees:     make(map[string]float64),
		orders:   make(map[string]*paperOrder),
		events:   make(chan OrderEvent, cfg.EventBuffer),
		closed:   make(chan struct{}),
	}

	for pair, r := range cfg.Rules {
		p.rules[pair] = r
		p.books[pair] = book.New(pair, cfg.BookMode)
	}
	for pair, fee := range cfg.Fees {
		p.fees[pair] = fee
	}

	return p
}

// Name возвращает имя рынка
func (p *PaperConnector) Name() string { return p.name }

// Ready: симулятор готов сразу после создания
func (p *PaperConnector) Ready() bool {
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

// GetBalance возвращает полный баланс актива
func (p *PaperConnector) GetBalance(asset string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[asset]
}

// GetAvailableBalance возвращает баланс за вычетом резервов открытых ордеров
func (p *PaperConnector) GetAvailableBalance(asset string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	avail := p.balances[asset] - p.reserved[asset]
	if avail < 0 {
		return 0
	}
	return avail
}

// GetPriceForVolume возвращает VWAP-цену исполнения объёма по книге пары
func (p *PaperConnector) GetPriceForVolume(tradingPair string, isBuy bool, amount float64) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.books[tradingPair]
	if !ok {
		return 0, &ConnectorError{Market: p.name, Code: "UNKNOWN_PAIR", Message: "unknown trading pair " + tradingPair}
	}
	return b.GetPriceForVolume(isBuy, amount)
}

// BestPrice возвращает лучшую цену стороны книги
func (p *PaperConnector) BestPrice(tradingPair string, isBuy bool) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.books[tradingPair]
	if !ok {
		return 0, &ConnectorError{Market: p.name, Code: "UNKNOWN_PAIR", Message: "unknown trading pair " + tradingPair}
	}
	var (
		lvl   book.PriceLevel
		found bool
	)
	if isBuy {
		lvl, found = b.BestAsk()
	} else {
		lvl, found = b.BestBid()
	}
	if !found {
		return 0, book.ErrInsufficientLiquidity
	}
	return lvl.Price, nil
}

// TradingRules возвращает правила торговли пары
func (p *PaperConnector) TradingRules(tradingPair string) (TradingRules, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.rules[tradingPair]
	if !ok {
		return TradingRules{}, &ConnectorError{Market: p.name, Code: "UNKNOWN_PAIR", Message: "unknown trading pair " + tradingPair}
	}
	return r, nil
}

// TakerFee возвращает комиссию тейкера пары
func (p *PaperConnector) TakerFee(tradingPair string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees[tradingPair]
}

// Pairs возвращает торговые пары коннектора
func (p *PaperConnector) Pairs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pairs := make([]string, 0, len(p.books))
	for pair := range p.books {
		pairs = append(pairs, pair)
	}
	return pairs
}

// BookTop возвращает вершину книги пары
func (p *PaperConnector) BookTop(tradingPair string) (bid, ask book.PriceLevel, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, found := p.books[tradingPair]
	if !found {
		return book.PriceLevel{}, book.PriceLevel{}, false
	}
	bid, _ = b.BestBid()
	ask, _ = b.BestAsk()
	return bid, ask, true
}

// BookLevels возвращает верхние уровни книги пары
func (p *PaperConnector) BookLevels(tradingPair string, limit int) (bids, asks []book.PriceLevel, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, found := p.books[tradingPair]
	if !found {
		return nil, nil, false
	}
	bids, asks = b.SnapshotLevels(limit)
	return bids, asks, true
}

// Events возвращает канал событий жизненного цикла ордеров
func (p *PaperConnector) Events() <-chan OrderEvent { return p.events }

// Close останавливает симулятор и закрывает канал событий
func (p *PaperConnector) Close() error {
	p.once.Do(func() {
		close(p.closed)
		close(p.events)
	})
	return nil
}

// PlaceLimitOrder размещает лимитный ордер в симуляторе.
//
// Проверяет правила пары и доступный баланс, резервирует средства,
// эмитит created и сразу исполняет доступную часть против книги.
// Неисполненный остаток встаёт в книгу собственным ордером.
func (p *PaperConnector) PlaceLimitOrder(ctx context.Context, tradingPair string, isBuy bool, amount, price float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.books[tradingPair]
	if !ok {
		return "", &ConnectorError{Market: p.name, Code: "UNKNOWN_PAIR", Message: "unknown trading pair " + tradingPair}
	}
	rules := p.rules[tradingPair]

	q := utils.QuantizeOrderAmount(amount, rules.LotSize, rules.MinQty)
	if q <= 0 {
		return "", &ConnectorError{Market: p.name, Code: "MIN_QTY",
			Message: fmt.Sprintf("amount %v below trading rules for %s", amount, tradingPair)}
	}
	if price <= 0 {
		return "", &ConnectorError{Market: p.name, Code: "BAD_PRICE", Message: "price must be positive"}
	}
	if rules.MinNotional > 0 && q*price < rules.MinNotional {
		return "", &ConnectorError{Market: p.name, Code: "MIN_NOTIONAL",
			Message: fmt.Sprintf("notional %v below minimum %v", q*price, rules.MinNotional)}
	}

	base, quote := models.SplitTradingPair(tradingPair)
	fee := p.fees[tradingPair]

	// Резервируем средства: quote для покупки (с учётом комиссии), base для продажи
	var reserveAsset string
	var reserveAmount float64
	if isBuy {
		reserveAsset = quote
		reserveAmount = q * price * (1 + fee)
	} else {
		reserveAsset = base
		reserveAmount = q
	}
	if p.balances[reserveAsset]-p.reserved[reserveAsset] < reserveAmount {
		return "", &ConnectorError{Market: p.name, Code: "INSUFFICIENT_FUNDS",
			Message: fmt.Sprintf("insufficient %s: need %v, available %v",
				reserveAsset, reserveAmount, p.balances[reserveAsset]-p.reserved[reserveAsset])}
	}
	p.reserved[reserveAsset] += reserveAmount

	id := uuid.NewString()
	o := &paperOrder{
		clientOrderID: id,
		tradingPair:   tradingPair,
		isBuy:         isBuy,
		price:         price,
		amount:        q,
		reserved:      reserveAmount,
	}
	p.orders[id] = o

	p.emit(OrderEvent{
		Type:          EventOrderCreated,
		Market:        p.name,
		ClientOrderID: id,
		TradingPair:   tradingPair,
		IsBuy:         isBuy,
		Price:         price,
		Amount:        q,
		Timestamp:     time.Now(),
	})

	p.matchLocked(o, b)

	// Остаток встаёт в книгу собственным ордером
	if o.filled < o.amount {
		p.updateID++
		if err := b.AddOrder(isBuy, id, price, o.amount-o.filled, p.updateID); err != nil {
			p.logger.Warn("failed to rest order in book", zap.String("order_id", id), zap.Error(err))
		}
	}

	return id, nil
}

// CancelOrder отменяет ордер симулятора; отмена неизвестного ордера - no-op
func (p *PaperConnector) CancelOrder(ctx context.Context, tradingPair, clientOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[clientOrderID]
	if !ok {
		// Ордер уже завершён или неизвестен: повторная отмена безопасна
		return nil
	}

	if b, ok := p.books[o.tradingPair]; ok {
		b.RemoveOrder(o.isBuy, clientOrderID, o.price)
	}
	p.releaseLocked(o)
	delete(p.orders, clientOrderID)

	p.emit(OrderEvent{
		Type:          EventOrderCanceled,
		Market:        p.name,
		ClientOrderID: clientOrderID,
		TradingPair:   o.tradingPair,
		IsBuy:         o.isBuy,
		Timestamp:     time.Now(),
	})
	return nil
}

// SeedBook загружает снапшот книги пары (для тестов и репликации фида)
func (p *PaperConnector) SeedBook(tradingPair string, bids, asks []book.Level, updateID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.books[tradingPair]
	if !ok {
		return &ConnectorError{Market: p.name, Code: "UNKNOWN_PAIR", Message: "unknown trading pair " + tradingPair}
	}
	b.ApplySnapshot(bids, asks, updateID)
	if updateID > p.updateID {
		p.updateID = updateID
	}
	p.fillCrossedLocked(b)
	return nil
}

// ApplyBookDiff применяет дифф к книге пары и исполняет пересечённые
// собственные ордера
func (p *PaperConnector) ApplyBookDiff(tradingPair string, isBid bool, price, amount float64, updateID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.books[tradingPair]
	if !ok {
		return &ConnectorError{Market: p.name, Code: "UNKNOWN_PAIR", Message: "unknown trading pair " + tradingPair}
	}
	b.ApplyDiff(isBid, price, amount, updateID)
	if updateID > p.updateID {
		p.updateID = updateID
	}
	p.fillCrossedLocked(b)
	return nil
}

// matchLocked исполняет ордер против противоположной стороны книги.
// Вызывается под mu.
func (p *PaperConnector) matchLocked(o *paperOrder, b *book.Book) {
	remaining := o.amount - o.filled
	if remaining <= 0 {
		return
	}

	// Сколько ликвидности доступно не хуже лимитной цены
	available := b.VolumeForPrice(o.isBuy, o.price)
	take := utils.Min(remaining, available)
	if take <= 0 {
		return
	}

	fillPrice, err := b.GetPriceForVolume(o.isBuy, take)
	if err != nil {
		return
	}

	// Снимаем ликвидность с книги диффом: уровни не хуже лимита обнуляются
	// в объёме исполнения (упрощение - снимаем уровни целиком от лучшей цены)
	p.consumeLiquidityLocked(b, o.isBuy, o.price, take)

	p.settleFillLocked(o, take, fillPrice)
}

// consumeLiquidityLocked снимает take объёма с противоположной стороны книги
func (p *PaperConnector) consumeLiquidityLocked(b *book.Book, isBuy bool, limit, take float64) {
	for take > 0 {
		var lvl book.PriceLevel
		var found bool
		if isBuy {
			lvl, found = b.BestAsk()
			if !found || lvl.Price > limit {
				return
			}
		} else {
			lvl, found = b.BestBid()
			if !found || lvl.Price < limit {
				return
			}
		}
		// Противоположная сторона: для покупки снимаем ask, для продажи - bid
		p.updateID++
		if lvl.Amount <= take {
			take -= lvl.Amount
			b.ApplyDiff(!isBuy, lvl.Price, 0, p.updateID)
		} else {
			b.ApplyDiff(!isBuy, lvl.Price, lvl.Amount-take, p.updateID)
			take = 0
		}
	}
}

// settleFillLocked проводит исполнение по балансам и эмитит события
func (p *PaperConnector) settleFillLocked(o *paperOrder, qty, fillPrice float64) {
	base, quote := models.SplitTradingPair(o.tradingPair)
	fee := p.fees[o.tradingPair]

	if o.isBuy {
		cost := qty * fillPrice * (1 + fee)
		p.balances[quote] -= cost
		p.balances[base] += qty
		// Освобождаем резерв пропорционально исполнению по лимитной цене
		release := qty * o.price * (1 + fee)
		p.reserved[quote] -= utils.Min(release, p.reserved[quote])
		o.reserved -= utils.Min(release, o.reserved)
	} else {
		proceeds := qty * fillPrice * (1 - fee)
		p.balances[base] -= qty
		p.balances[quote] += proceeds
		p.reserved[base] -= utils.Min(qty, p.reserved[base])
		o.reserved -= utils.Min(qty, o.reserved)
	}

	o.filled += qty

	p.emit(OrderEvent{
		Type:          EventOrderFilled,
		Market:        p.name,
		ClientOrderID: o.clientOrderID,
		TradingPair:   o.tradingPair,
		IsBuy:         o.isBuy,
		FilledAmount:  qty,
		FillPrice:     fillPrice,
		Timestamp:     time.Now(),
	})

	if o.filled >= o.amount {
		completedType := EventSellOrderCompleted
		if o.isBuy {
			completedType = EventBuyOrderCompleted
		}
		p.releaseLocked(o)
		delete(p.orders, o.clientOrderID)
		p.emit(OrderEvent{
			Type:          completedType,
			Market:        p.name,
			ClientOrderID: o.clientOrderID,
			TradingPair:   o.tradingPair,
			IsBuy:         o.isBuy,
			FilledAmount:  o.filled,
			FillPrice:     fillPrice,
			Timestamp:     time.Now(),
		})
	}
}

// fillCrossedLocked исполняет отдыхающие ордера, которые пересёк новый дифф.
// Исполнение по лимитной цене ордера - консервативная модель.
func (p *PaperConnector) fillCrossedLocked(b *book.Book) {
	for _, o := range p.orders {
		if o.tradingPair != b.TradingPair {
			continue
		}
		remaining := o.amount - o.filled
		if remaining <= 0 {
			continue
		}

		best, err := p.bestOppositeLocked(b, o.isBuy)
		if err != nil {
			continue
		}
		crossed := (o.isBuy && best <= o.price) || (!o.isBuy && best >= o.price)
		if !crossed {
			continue
		}

		// Снимаем собственный отдыхающий ордер с книги и исполняем остаток
		b.RemoveOrder(o.isBuy, o.clientOrderID, o.price)
		p.settleFillLocked(o, remaining, o.price)
	}
}

func (p *PaperConnector) bestOppositeLocked(b *book.Book, isBuy bool) (float64, error) {
	var lvl book.PriceLevel
	var found bool
	if isBuy {
		lvl, found = b.BestAsk()
	} else {
		lvl, found = b.BestBid()
	}
	if !found {
		return 0, book.ErrInsufficientLiquidity
	}
	return lvl.Price, nil
}

// releaseLocked освобождает остаток резерва ордера
func (p *PaperConnector) releaseLocked(o *paperOrder) {
	if o.reserved <= 0 {
		return
	}
	base, quote := models.SplitTradingPair(o.tradingPair)
	asset := base
	if o.isBuy {
		asset = quote
	}
	p.reserved[asset] -= utils.Min(o.reserved, p.reserved[asset])
	o.reserved = 0
}

// emit отправляет событие подписчику; при закрытом симуляторе событие теряется
func (p *PaperConnector) emit(ev OrderEvent) {
	select {
	case <-p.closed:
	case p.events <- ev:
	}
}
