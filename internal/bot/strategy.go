package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
)

// Clock выдаёт тики, которыми движется цикл стратегии.
// Продакшен-реализация - time.Ticker, тесты подставляют ручные тики.
type Clock interface {
	Ticks() <-chan time.Time
	Stop()
}

// RealClock - часы на time.Ticker
type RealClock struct {
	ticker *time.Ticker
}

// NewRealClock создаёт часы с заданным интервалом тиков
func NewRealClock(interval time.Duration) *RealClock {
	return &RealClock{ticker: time.NewTicker(interval)}
}

func (c *RealClock) Ticks() <-chan time.Time { return c.ticker.C }

func (c *RealClock) Stop() { c.ticker.Stop() }

// OpportunitySource поставляет кандидатов на исполнение.
// Опрашивается каждый тик; (nil, false) = возможностей нет.
type OpportunitySource interface {
	Next(now time.Time) (*models.ArbitrageCycle, bool)
}

// StrategySnapshot - снимок состояния стратегии для API-слоя
type StrategySnapshot struct {
	State         string    `json:"state"`
	FailedLegs    int       `json:"failed_legs"`
	TrackedOrders int       `json:"tracked_orders"`
	TicksSeen     uint64    `json:"ticks_seen"`
	LastTickAt    time.Time `json:"last_tick_at"`
}

// StrategyLoop - корневой актор стратегии.
//
// Модель исполнения однопоточная: ровно одна горутина (Run) владеет
// диспетчером, трекерами и всем изменяемым состоянием ядра. События
// коннекторов стекаются в общий inbox, тики приходят от Clock; обработка
// строго последовательная, поэтому ядру не нужны блокировки. Снаружи
// доступен только Snapshot() через собственный мьютекс снимка.
type StrategyLoop struct {
	connectors map[string]exchange.MarketConnector
	tracker    *OrderTracker
	dispatcher *EventDispatcher
	execution  *ExecutionTracker
	source     OpportunitySource
	clock      Clock
	logger     *zap.Logger

	inbox chan exchange.OrderEvent

	snapMu   sync.RWMutex
	snapshot StrategySnapshot

	wg sync.WaitGroup
}

// NewStrategyLoop собирает цикл стратегии из готовых частей.
// Трекер исполнения регистрируется делегатом диспетчера.
func NewStrategyLoop(
	connectors map[string]exchange.MarketConnector,
	tracker *OrderTracker,
	dispatcher *EventDispatcher,
	execution *ExecutionTracker,
	source OpportunitySource,
	clock Clock,
	logger *zap.Logger,
) (*StrategyLoop, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := dispatcher.AddDelegate(execution); err != nil {
		return nil, err
	}
	return &StrategyLoop{
		connectors: connectors,
		tracker:    tracker,
		dispatcher: dispatcher,
		execution:  execution,
		source:     source,
		clock:      clock,
		logger:     logger,
		inbox:      make(chan exchange.OrderEvent, 1024),
	}, nil
}

// Run запускает цикл стратегии и блокируется до отмены контекста либо
// срабатывания kill switch. События и тики обрабатываются строго
// последовательно.
func (s *StrategyLoop) Run(ctx context.Context) error {
	// Дочерний контекст гасит форвардеры и при остановке по kill switch
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.startForwarders(ctx)
	defer s.clock.Stop()

	s.logger.Info("strategy loop started",
		zap.Int("connectors", len(s.connectors)))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("strategy loop stopping")
			s.wg.Wait()
			return ctx.Err()

		case <-s.execution.Halted():
			s.logger.Error("kill switch engaged, strategy loop stopping",
				zap.Int("failed_legs", s.execution.FailedLegs()))
			cancel()
			s.wg.Wait()
			s.snapMu.Lock()
			s.snapshot.State = s.execution.State()
			s.snapshot.FailedLegs = s.execution.FailedLegs()
			s.snapMu.Unlock()
			return ErrHalted

		case ev := <-s.inbox:
			s.dispatcher.Dispatch(ev)

		case now := <-s.clock.Ticks():
			s.tick(ctx, now)
		}
	}
}

// startForwarders сливает каналы событий всех коннекторов в общий inbox
func (s *StrategyLoop) startForwarders(ctx context.Context) {
	for name, conn := range s.connectors {
		name, conn := name, conn
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-conn.Events():
					if !ok {
						s.logger.Info("connector event stream closed", zap.String("market", name))
						return
					}
					select {
					case s.inbox <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
}

// tick обрабатывает один тик часов
func (s *StrategyLoop) tick(ctx context.Context, now time.Time) {
	start := time.Now()

	// Сначала продвигаем машину исполнения (развороты, cooldown),
	// затем, если трекер снова готов, берём следующую возможность
	s.execution.Tick(ctx, now)

	if s.execution.State() == models.StateReady && s.source != nil && s.connectorsReady() {
		if cycle, ok := s.source.Next(now); ok && cycle != nil {
			if err := s.execution.Execute(ctx, cycle); err != nil {
				s.logger.Debug("cycle not executed", zap.Error(err))
			}
		}
	}

	s.snapMu.Lock()
	s.snapshot.State = s.execution.State()
	s.snapshot.FailedLegs = s.execution.FailedLegs()
	s.snapshot.TrackedOrders = s.tracker.Count()
	s.snapshot.TicksSeen++
	s.snapshot.LastTickAt = now
	s.snapMu.Unlock()

	TickLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// connectorsReady сообщает, синхронизированы ли книги и балансы всех
// рынков. Пока хотя бы один коннектор не готов, цены ненадёжны и новые
// циклы не открываются.
func (s *StrategyLoop) connectorsReady() bool {
	for name, conn := range s.connectors {
		if !conn.Ready() {
			s.logger.Debug("market not ready, skipping opportunity poll",
				zap.String("market", name))
			return false
		}
	}
	return true
}

// Snapshot возвращает снимок состояния стратегии
func (s *StrategyLoop) Snapshot() StrategySnapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}
