package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/pkg/retry"
	"cyclebot/pkg/utils"
)

// correctiveRetryConfig - ретраи размещения корректирующих ордеров
func correctiveRetryConfig() retry.Config {
	cfg := retry.AggressiveConfig()
	cfg.MaxRetries = 3
	cfg.RetryIf = retry.RetryIfNotContext
	return cfg
}

// Параметры исполнения по умолчанию
const (
	DefaultBuySafetyMultiplier = 1.05             // запас котируемого актива на проскальзывание при покупке
	DefaultFailureCooldown     = 60 * time.Second // пауза после разворота
	DefaultFailedLegTolerance  = 100              // порог kill switch по провалившимся ногам
)

// Ошибки исполнения
var (
	ErrNotReady       = errors.New("execution tracker is not ready for a new cycle")
	ErrCycleRejected  = errors.New("cycle rejected before placing any orders")
	ErrUnknownMarket  = errors.New("cycle references unknown market")
	ErrHalted         = errors.New("execution tracker is halted")
	ErrCycleNotViable = errors.New("cycle is not marked executable")
)

// ExecutionConfig - конфигурация трекера исполнения циклов
type ExecutionConfig struct {
	BuySafetyMultiplier float64
	FailureCooldown     time.Duration
	FailedLegTolerance  int
}

// DefaultExecutionConfig возвращает конфигурацию по умолчанию
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		BuySafetyMultiplier: DefaultBuySafetyMultiplier,
		FailureCooldown:     DefaultFailureCooldown,
		FailedLegTolerance:  DefaultFailedLegTolerance,
	}
}

// legState - состояние одной ноги активного цикла
type legState struct {
	proposed  models.ProposedOrder
	quantized float64
	rules     exchange.TradingRules

	clientOrderID string
	state         string // models.Leg*
	filled        float64

	// Корректирующий ордер разворота: ровно один на исполненную ногу
	correctiveID   string
	correctiveDone bool
}

// ExecutionTracker исполняет арбитражные циклы и разворачивает их при сбоях.
//
// Машина состояний:
//
//	READY → EXECUTING → READY            (все ноги исполнены)
//	              ↘ REVERSING → COOLING_DOWN → READY
//	любое активное → HALTED               (kill switch)
//
// Все методы вызываются из горутины цикла стратегии; публичного доступа
// из других горутин нет, кроме State()/FailedLegs() через снапшот-геттеры.
//
// Ключевые гарантии:
//   - цикл размещается целиком или не размещается вовсе: нога, квантованная
//     в ноль, или нехватка средств отклоняют ВСЕ ноги до единого ордера;
//   - на каждую исполненную (хотя бы частично) ногу провалившегося цикла
//     размещается РОВНО ОДИН корректирующий ордер;
//   - при нехватке средств на точный разворот нога разворачивается на весь
//     доступный баланс (all-in fallback);
//   - превышение порога провалившихся ног останавливает трекер навсегда.
type ExecutionTracker struct {
	cfg        ExecutionConfig
	connectors map[string]exchange.MarketConnector
	orders     *OrderTracker
	notifyCh   chan *models.Notification
	logger     *zap.Logger

	state         string
	legs          []*legState
	direction     string
	reverse       bool
	failedLegs    int // накопительный, не сбрасывается между циклами
	cooldownUntil time.Time

	// Закрывается один раз при срабатывании kill switch
	halted chan struct{}

	// Маршрутизация корректирующих ордеров: id → нога
	correctives map[string]*legState
}

// NewExecutionTracker создаёт трекер исполнения в состоянии READY
func NewExecutionTracker(
	cfg ExecutionConfig,
	connectors map[string]exchange.MarketConnector,
	orders *OrderTracker,
	notifyCh chan *models.Notification,
	logger *zap.Logger,
) *ExecutionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BuySafetyMultiplier <= 0 {
		cfg.BuySafetyMultiplier = DefaultBuySafetyMultiplier
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = DefaultFailureCooldown
	}
	if cfg.FailedLegTolerance <= 0 {
		cfg.FailedLegTolerance = DefaultFailedLegTolerance
	}

	t := &ExecutionTracker{
		cfg:         cfg,
		connectors:  connectors,
		orders:      orders,
		notifyCh:    notifyCh,
		logger:      logger,
		state:       models.StateReady,
		correctives: make(map[string]*legState),
		halted:      make(chan struct{}),
	}
	SetExecutionState(t.state, allStates())
	return t
}

func allStates() []string {
	return []string{
		models.StateReady, models.StateExecuting, models.StateReversing,
		models.StateCoolingDown, models.StateHalted,
	}
}

// Name реализует EventDelegate
func (t *ExecutionTracker) Name() string { return "execution_tracker" }

// State возвращает текущее состояние
func (t *ExecutionTracker) State() string { return t.state }

// FailedLegs возвращает накопительное число провалившихся ног
func (t *ExecutionTracker) FailedLegs() int { return t.failedLegs }

// Halted возвращает канал, закрываемый при срабатывании kill switch.
// Цикл стратегии слушает его, чтобы отцепить слушателей и остановиться.
func (t *ExecutionTracker) Halted() <-chan struct{} { return t.halted }

// transition выполняет переход состояния с проверкой допустимости
func (t *ExecutionTracker) transition(to string) error {
	if !CanTransition(t.state, to) {
		return &StateTransitionError{From: t.state, To: to}
	}
	t.logger.Info("execution state transition",
		zap.String("from", t.state), zap.String("to", to))
	t.state = to
	SetExecutionState(t.state, allStates())
	return nil
}

// Execute размещает все ноги цикла.
//
// Порядок проверок до единого ордера:
//  1. структурная валидность цикла и флаг CanExecute;
//  2. квантование каждой ноги: ноль - отклонить весь цикл;
//  3. достаточность средств по каждому (рынок, актив) с учётом
//     BuySafetyMultiplier для покупок.
//
// Любой отказ оставляет трекер в READY и не трогает биржи.
func (t *ExecutionTracker) Execute(ctx context.Context, cycle *models.ArbitrageCycle) error {
	if t.state == models.StateHalted {
		return ErrHalted
	}
	if t.state != models.StateReady {
		return ErrNotReady
	}
	if err := cycle.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCycleRejected, err)
	}
	if !cycle.CanExecute {
		return ErrCycleNotViable
	}

	// Шаг 1: квантование всех ног
	legs := make([]*legState, 0, len(cycle.Orders))
	for i, po := range cycle.Orders {
		conn, ok := t.connectors[po.Market]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMarket, po.Market)
		}
		rules, err := conn.TradingRules(po.TradingPair)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCycleRejected, err)
		}
		q := utils.QuantizeOrderAmount(po.Amount, rules.LotSize, rules.MinQty)
		if q <= 0 {
			// Нога не проходит правила биржи: отклоняем весь цикл,
			// не разместив ни одного ордера
			t.notify(models.NotificationTypeCycleAbort, models.SeverityWarn, po.Market,
				fmt.Sprintf("leg %d (%s %s) quantized to zero, cycle dropped", i, po.Market, po.TradingPair))
			RecordCycle("aborted")
			return fmt.Errorf("%w: leg %d quantized to zero", ErrCycleRejected, i)
		}
		legs = append(legs, &legState{
			proposed:  po,
			quantized: q,
			rules:     rules,
			state:     models.LegNotPlaced,
		})
	}

	// Шаг 2: достаточность средств, агрегированно по (рынок, актив)
	if err := t.checkFunds(legs); err != nil {
		t.notify(models.NotificationTypeInsufficient, models.SeverityWarn, "", err.Error())
		RecordCycle("aborted")
		return fmt.Errorf("%w: %v", ErrCycleRejected, err)
	}

	// Шаг 3: размещение
	if err := t.transition(models.StateExecuting); err != nil {
		return err
	}
	t.legs = legs
	t.direction = cycle.Direction
	t.reverse = false

	for i, leg := range legs {
		conn := t.connectors[leg.proposed.Market]
		id, err := conn.PlaceLimitOrder(ctx, leg.proposed.TradingPair, leg.proposed.IsBuy, leg.quantized, leg.proposed.Price)
		if err != nil {
			// Размещение сорвалось после проверок: нога считается
			// провалившейся, цикл уходит в разворот
			t.logger.Error("leg placement failed",
				zap.Int("leg", i), zap.String("market", leg.proposed.Market), zap.Error(err))
			leg.state = models.LegFailed
			t.registerLegFailure(leg)
			continue
		}
		leg.clientOrderID = id
		leg.state = models.LegPlaced

		base, quote := models.SplitTradingPair(leg.proposed.TradingPair)
		rec := &models.OrderRecord{
			ClientOrderID: id,
			Market:        leg.proposed.Market,
			TradingPair:   leg.proposed.TradingPair,
			IsBuy:         leg.proposed.IsBuy,
			BaseAsset:     base,
			QuoteAsset:    quote,
			Price:         leg.proposed.Price,
			Quantity:      leg.quantized,
			CreatedAt:     time.Now(),
			Status:        models.OrderStatusPending,
		}
		if err := t.orders.StartTracking(rec); err != nil {
			// uuid-коллизия практически невозможна, но id обязан быть уникален
			t.logger.Error("duplicate client order id", zap.String("order_id", id), zap.Error(err))
		}
	}

	t.notify(models.NotificationTypeCycleOpen, models.SeverityInfo, "",
		fmt.Sprintf("cycle opened: %d legs, direction %s", len(legs), t.direction))
	return nil
}

// checkFunds агрегирует потребность в средствах по (рынок, актив)
// и сравнивает с доступными балансами
func (t *ExecutionTracker) checkFunds(legs []*legState) error {
	type key struct{ market, asset string }
	need := make(map[key]float64)

	for _, leg := range legs {
		base, quote := models.SplitTradingPair(leg.proposed.TradingPair)
		if leg.proposed.IsBuy {
			// Запас на проскальзывание и комиссию
			need[key{leg.proposed.Market, quote}] += leg.quantized * leg.proposed.Price * t.cfg.BuySafetyMultiplier
		} else {
			need[key{leg.proposed.Market, base}] += leg.quantized
		}
	}

	for k, amount := range need {
		avail := t.connectors[k.market].GetAvailableBalance(k.asset)
		if avail < amount {
			return fmt.Errorf("insufficient %s on %s: need %v, available %v", k.asset, k.market, amount, avail)
		}
	}
	return nil
}

// OnOrderEvent реализует EventDelegate: обновляет состояние ног цикла
// и корректирующих ордеров. Размещением новых ордеров НЕ занимается -
// это делает Tick, у которого есть контекст исполнения.
func (t *ExecutionTracker) OnOrderEvent(ev exchange.OrderEvent) {
	if leg := t.findLeg(ev.ClientOrderID); leg != nil {
		t.applyLegEvent(leg, ev)
		return
	}
	if leg, ok := t.correctives[ev.ClientOrderID]; ok {
		t.applyCorrectiveEvent(leg, ev)
	}
}

func (t *ExecutionTracker) findLeg(clientOrderID string) *legState {
	for _, leg := range t.legs {
		if leg.clientOrderID == clientOrderID {
			return leg
		}
	}
	return nil
}

// applyLegEvent обновляет состояние ноги по событию её ордера
func (t *ExecutionTracker) applyLegEvent(leg *legState, ev exchange.OrderEvent) {
	switch ev.Type {
	case exchange.EventOrderCreated:
		// Подтверждение размещения; состояние не меняем, если fill обогнал

	case exchange.EventOrderFilled:
		leg.filled += ev.FilledAmount
		if leg.filled > leg.quantized {
			leg.filled = leg.quantized
		}
		if !models.LegResolved(leg.state) {
			leg.state = models.LegPartiallyFilled
		}

	case exchange.EventBuyOrderCompleted, exchange.EventSellOrderCompleted:
		leg.filled = leg.quantized
		leg.state = models.LegFilled

	case exchange.EventOrderCanceled, exchange.EventOrderExpired:
		// Неисполненная нога ломает цикл: частично исполненную придётся
		// развернуть, полностью неисполненная просто не даст завершения
		leg.state = models.LegCanceled
		t.reverse = true

	case exchange.EventOrderFailed:
		leg.state = models.LegFailed
		t.registerLegFailure(leg)
		t.notify(models.NotificationTypeLegFail, models.SeverityWarn, ev.Market,
			fmt.Sprintf("leg %s %s failed: %s", ev.Market, ev.TradingPair, ev.Reason))
	}

	t.maybeComplete()
}

// registerLegFailure учитывает провал ноги и проверяет kill switch
func (t *ExecutionTracker) registerLegFailure(leg *legState) {
	t.reverse = true
	t.failedLegs++
	LegsFailed.Inc()

	if t.failedLegs > t.cfg.FailedLegTolerance && t.state != models.StateHalted {
		t.logger.Error("failed leg tolerance exceeded, halting",
			zap.Int("failed_legs", t.failedLegs),
			zap.Int("tolerance", t.cfg.FailedLegTolerance))
		if err := t.transition(models.StateHalted); err != nil {
			t.logger.Error("halt transition failed", zap.Error(err))
		}
		t.notify(models.NotificationTypeKillSwitch, models.SeverityError, "",
			fmt.Sprintf("kill switch: %d failed legs exceed tolerance %d", t.failedLegs, t.cfg.FailedLegTolerance))
		close(t.halted)
	}
}

// maybeComplete завершает цикл, когда все ноги исполнены без сбоев
func (t *ExecutionTracker) maybeComplete() {
	if t.state != models.StateExecuting || t.reverse {
		return
	}
	for _, leg := range t.legs {
		if leg.state != models.LegFilled {
			return
		}
	}

	if err := t.transition(models.StateReady); err != nil {
		t.logger.Error("completion transition failed", zap.Error(err))
		return
	}
	RecordCycle("complete")
	t.notify(models.NotificationTypeCycleComplete, models.SeverityInfo, "",
		fmt.Sprintf("cycle complete: %d legs filled", len(t.legs)))
	t.legs = nil
}

// Tick продвигает машину состояний по времени.
//
// EXECUTING: если цикл сломан - отменить зависшие ноги, а когда все ноги
// разрешены - начать разворот.
// REVERSING: если все корректирующие ордера завершены - начать cooldown.
// COOLING_DOWN: по истечении паузы вернуться в READY.
func (t *ExecutionTracker) Tick(ctx context.Context, now time.Time) {
	switch t.state {
	case models.StateExecuting:
		if t.reverse {
			if t.allLegsResolved() {
				t.beginReversal(ctx, now)
			} else {
				t.cancelUnresolvedLegs(ctx, now)
			}
		}

	case models.StateReversing:
		if t.allCorrectivesDone() {
			t.cooldownUntil = now.Add(t.cfg.FailureCooldown)
			if err := t.transition(models.StateCoolingDown); err != nil {
				t.logger.Error("cooldown transition failed", zap.Error(err))
			}
		}

	case models.StateCoolingDown:
		if !now.Before(t.cooldownUntil) {
			if err := t.transition(models.StateReady); err != nil {
				t.logger.Error("ready transition failed", zap.Error(err))
				return
			}
			t.legs = nil
			t.correctives = make(map[string]*legState)
		}
	}
}

// cancelUnresolvedLegs отзывает ноги, всё ещё стоящие в книге после того,
// как цикл сломан. Без отзыва частично сломанный цикл вечно ждёт исполнения
// брошенных ног и никогда не доходит до разворота.
//
// Дубли подавляет CheckAndTrackCancel: повторная отмена того же ордера
// уходит не раньше, чем через cancelExpiry после предыдущей.
func (t *ExecutionTracker) cancelUnresolvedLegs(ctx context.Context, now time.Time) {
	for _, leg := range t.legs {
		if leg.state != models.LegPlaced && leg.state != models.LegPartiallyFilled {
			continue
		}
		if leg.clientOrderID == "" {
			continue
		}
		if !t.orders.CheckAndTrackCancel(leg.clientOrderID, now) {
			continue
		}
		conn := t.connectors[leg.proposed.Market]
		if err := conn.CancelOrder(ctx, leg.proposed.TradingPair, leg.clientOrderID); err != nil {
			// Разрешение ноги придёт событием; до него отмена повторится
			// после истечения окна подавления
			t.logger.Warn("leg cancel failed",
				zap.String("market", leg.proposed.Market),
				zap.String("pair", leg.proposed.TradingPair),
				zap.String("order_id", leg.clientOrderID),
				zap.Error(err))
			continue
		}
		t.logger.Info("canceling abandoned leg",
			zap.String("market", leg.proposed.Market),
			zap.String("pair", leg.proposed.TradingPair),
			zap.String("order_id", leg.clientOrderID))
	}
}

func (t *ExecutionTracker) allLegsResolved() bool {
	for _, leg := range t.legs {
		if leg.state == models.LegPlaced || leg.state == models.LegPartiallyFilled {
			return false
		}
	}
	return true
}

func (t *ExecutionTracker) allCorrectivesDone() bool {
	for _, leg := range t.correctives {
		if !leg.correctiveDone {
			return false
		}
	}
	return true
}

// beginReversal размещает корректирующие ордера для исполненных ног.
//
// Ровно один корректирующий ордер на каждую ногу с filled > 0:
// покупка разворачивается продажей исполненного объёма, продажа -
// обратной покупкой. При нехватке средств на точный объём нога
// разворачивается на весь доступный баланс.
func (t *ExecutionTracker) beginReversal(ctx context.Context, now time.Time) {
	if err := t.transition(models.StateReversing); err != nil {
		t.logger.Error("reversal transition failed", zap.Error(err))
		return
	}
	RecordCycle("reversed")

	placed := 0
	for _, leg := range t.legs {
		if leg.filled <= 0 || leg.correctiveID != "" {
			continue
		}
		if t.placeCorrective(ctx, leg, now) {
			placed++
		}
	}

	t.notify(models.NotificationTypeReversal, models.SeverityWarn, "",
		fmt.Sprintf("reversal started: %d corrective orders", placed))

	// Нечего разворачивать: сразу в cooldown
	if placed == 0 {
		t.cooldownUntil = now.Add(t.cfg.FailureCooldown)
		if err := t.transition(models.StateCoolingDown); err != nil {
			t.logger.Error("cooldown transition failed", zap.Error(err))
		}
	}
}

// placeCorrective размещает один корректирующий ордер для ноги.
// Возвращает true, если ордер размещён и ждёт исполнения.
func (t *ExecutionTracker) placeCorrective(ctx context.Context, leg *legState, now time.Time) bool {
	conn := t.connectors[leg.proposed.Market]
	pair := leg.proposed.TradingPair
	base, quote := models.SplitTradingPair(pair)
	isBuy := !leg.proposed.IsBuy // разворот - противоположная сторона

	// Цена разворота: текущая лучшая цена противоположной стороны книги,
	// при пустой книге - цена исходной ноги
	price, err := conn.BestPrice(pair, isBuy)
	if err != nil || price <= 0 {
		price = leg.proposed.Price
	}

	amount := utils.QuantizeOrderAmount(leg.filled, leg.rules.LotSize, leg.rules.MinQty)
	if amount <= 0 {
		t.logger.Warn("corrective amount quantized to zero, position left open",
			zap.String("market", leg.proposed.Market), zap.String("pair", pair),
			zap.Float64("filled", leg.filled))
		leg.correctiveDone = true
		return false
	}

	mode := "exact"
	if isBuy {
		needed := amount * price * t.cfg.BuySafetyMultiplier
		avail := conn.GetAvailableBalance(quote)
		if avail < needed {
			// All-in fallback: выкупаем сколько можем на весь доступный баланс
			amount = utils.QuantizeOrderAmount(avail/(price*t.cfg.BuySafetyMultiplier), leg.rules.LotSize, leg.rules.MinQty)
			mode = "all_in"
		}
	} else {
		avail := conn.GetAvailableBalance(base)
		if avail < amount {
			amount = utils.QuantizeOrderAmount(avail, leg.rules.LotSize, leg.rules.MinQty)
			mode = "all_in"
		}
	}
	if amount <= 0 {
		t.logger.Warn("no funds for corrective order, position left open",
			zap.String("market", leg.proposed.Market), zap.String("pair", pair))
		leg.correctiveDone = true
		return false
	}
	if mode == "all_in" {
		t.notify(models.NotificationTypeAllIn, models.SeverityWarn, leg.proposed.Market,
			fmt.Sprintf("corrective for %s %s recalculated to full available balance", leg.proposed.Market, pair))
	}

	// Разворот обязан состояться: размещение ретраится агрессивно,
	// отмена контекста прерывает попытки
	var id string
	err = retry.Do(ctx, func() error {
		var perr error
		id, perr = conn.PlaceLimitOrder(ctx, pair, isBuy, amount, price)
		return perr
	}, correctiveRetryConfig())
	if err != nil {
		t.logger.Error("corrective placement failed",
			zap.String("market", leg.proposed.Market), zap.String("pair", pair), zap.Error(err))
		t.notify(models.NotificationTypeError, models.SeverityError, leg.proposed.Market,
			fmt.Sprintf("corrective order failed for %s: %v", pair, err))
		leg.correctiveDone = true
		return false
	}

	leg.correctiveID = id
	t.correctives[id] = leg
	CorrectiveOrders.WithLabelValues(mode).Inc()

	rec := &models.OrderRecord{
		ClientOrderID: id,
		Market:        leg.proposed.Market,
		TradingPair:   pair,
		IsBuy:         isBuy,
		BaseAsset:     base,
		QuoteAsset:    quote,
		Price:         price,
		Quantity:      amount,
		CreatedAt:     now,
		Status:        models.OrderStatusPending,
	}
	if err := t.orders.StartTracking(rec); err != nil {
		t.logger.Error("duplicate corrective order id", zap.String("order_id", id), zap.Error(err))
	}
	return true
}

// applyCorrectiveEvent обрабатывает события корректирующих ордеров
func (t *ExecutionTracker) applyCorrectiveEvent(leg *legState, ev exchange.OrderEvent) {
	if exchange.TerminalEvent(ev.Type) {
		leg.correctiveDone = true
		if ev.Type == exchange.EventOrderFailed {
			// Разворот тоже сорвался: позиция остаётся открытой,
			// оператору нужно вмешаться
			t.notify(models.NotificationTypeError, models.SeverityError, ev.Market,
				fmt.Sprintf("corrective order %s failed: %s", ev.ClientOrderID, ev.Reason))
		}
	}
}

// notify ставит уведомление в очередь; переполнение канала не блокирует ядро
func (t *ExecutionTracker) notify(typ, severity, market, message string) {
	tryEnqueueNotification(t.notifyCh, &models.Notification{
		Timestamp: time.Now(),
		Type:      typ,
		Severity:  severity,
		Market:    market,
		Message:   message,
	})
}
