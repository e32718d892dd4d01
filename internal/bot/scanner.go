package bot

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"cyclebot/internal/book"
	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// TopOfBook читает лучшие цены книги торговой пары.
// Реализуется коннектором, владеющим книгами своих пар.
type TopOfBook interface {
	BookTop(tradingPair string) (bid, ask book.PriceLevel, ok bool)
}

// ScannerConfig - конфигурация сканера треугольных циклов
type ScannerConfig struct {
	Market     string
	Ring       [3]string          // пары кольца, например BTC-USDT, ETH-BTC, ETH-USDT
	StartAsset string             // актив входа и выхода цикла
	Notional   float64            // размер входа в StartAsset
	MinReturn  float64            // минимальная доходность цикла в процентах
	Fees       map[string]float64 // комиссия тейкера по парам, в долях
}

// TriangularScanner ищет исполнимый треугольный цикл по верхам книг.
//
// Чистая функция от текущего состояния книг: каждый вызов Next заново
// обходит кольцо в обоих направлениях и возвращает лучший цикл, если его
// доходность с учётом комиссий не ниже порога. Объём каждой ноги
// ограничивается ликвидностью верхнего уровня.
type TriangularScanner struct {
	cfg    ScannerConfig
	top    TopOfBook
	logger *zap.Logger
}

// NewTriangularScanner создаёт сканер и проверяет замкнутость кольца
func NewTriangularScanner(cfg ScannerConfig, top TopOfBook, logger *zap.Logger) (*TriangularScanner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if top == nil {
		return nil, fmt.Errorf("scanner requires a book source")
	}
	if cfg.Notional <= 0 {
		return nil, fmt.Errorf("scanner notional must be positive, got %v", cfg.Notional)
	}
	for _, pair := range cfg.Ring {
		if err := utils.ValidateTradingPair(pair); err != nil {
			return nil, err
		}
	}

	// Кольцо обязано замыкаться, и стартовый актив обязан в нём участвовать
	probe := &models.ArbitrageCycle{Direction: models.DirectionClockwise}
	startSeen := false
	for _, pair := range cfg.Ring {
		base, quote := models.SplitTradingPair(pair)
		if base == cfg.StartAsset || quote == cfg.StartAsset {
			startSeen = true
		}
		probe.Orders = append(probe.Orders, models.ProposedOrder{
			Market: cfg.Market, TradingPair: pair, Price: 1, Amount: 1,
		})
	}
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("scanner ring is not a closed cycle: %w", err)
	}
	if !startSeen {
		return nil, fmt.Errorf("start asset %s is not part of the ring", cfg.StartAsset)
	}

	return &TriangularScanner{
		cfg:    cfg,
		top:    top,
		logger: logger.With(zap.String("market", cfg.Market)),
	}, nil
}

// Next возвращает лучший исполнимый цикл по текущим верхам книг
func (s *TriangularScanner) Next(now time.Time) (*models.ArbitrageCycle, bool) {
	forward := s.cfg.Ring[:]
	backward := []string{s.cfg.Ring[2], s.cfg.Ring[1], s.cfg.Ring[0]}

	var best *models.ArbitrageCycle
	bestReturn := s.cfg.MinReturn

	// Безубыточные циклы (ret == 0) не интересны даже при нулевом пороге
	if cycle, ret, err := s.walk(forward, models.DirectionClockwise); err == nil && ret > 0 && ret >= bestReturn {
		best, bestReturn = cycle, ret
	}
	if cycle, ret, err := s.walk(backward, models.DirectionCounterClockwise); err == nil && ret > 0 && ret > bestReturn {
		best, bestReturn = cycle, ret
	}

	if best == nil {
		return nil, false
	}

	best.CanExecute = true
	s.logger.Debug("cycle candidate found",
		zap.String("direction", best.Direction),
		zap.Float64("return_pct", bestReturn))
	return best, true
}

// walk обходит кольцо в заданном порядке пар, начиная со StartAsset.
// Возвращает собранный цикл и его доходность в процентах.
func (s *TriangularScanner) walk(pairs []string, direction string) (*models.ArbitrageCycle, float64, error) {
	cur := s.cfg.StartAsset
	amount := s.cfg.Notional

	orders := make([]models.ProposedOrder, 0, len(pairs))
	rates := make([]float64, 0, len(pairs))
	fees := make([]float64, 0, len(pairs))

	for _, pair := range pairs {
		base, quote := models.SplitTradingPair(pair)
		bid, ask, ok := s.top.BookTop(pair)
		if !ok {
			return nil, 0, fmt.Errorf("no book for pair %s", pair)
		}

		switch cur {
		case quote:
			// Покупаем base по лучшему ask, не больше его ликвидности
			if ask.Price <= 0 {
				return nil, 0, fmt.Errorf("empty ask side for pair %s", pair)
			}
			baseAmt := utils.Min(amount/ask.Price, ask.Amount)
			orders = append(orders, models.ProposedOrder{
				Market:      s.cfg.Market,
				TradingPair: pair,
				IsBuy:       true,
				Price:       ask.Price,
				Amount:      baseAmt,
			})
			rates = append(rates, 1/ask.Price)
			cur, amount = base, baseAmt

		case base:
			// Продаём base по лучшему bid
			if bid.Price <= 0 {
				return nil, 0, fmt.Errorf("empty bid side for pair %s", pair)
			}
			sellAmt := utils.Min(amount, bid.Amount)
			orders = append(orders, models.ProposedOrder{
				Market:      s.cfg.Market,
				TradingPair: pair,
				IsBuy:       false,
				Price:       bid.Price,
				Amount:      sellAmt,
			})
			rates = append(rates, bid.Price)
			cur, amount = quote, sellAmt*bid.Price

		default:
			return nil, 0, fmt.Errorf("ring broken at pair %s: holding %s", pair, cur)
		}

		fees = append(fees, s.cfg.Fees[pair])
	}

	if cur != s.cfg.StartAsset {
		return nil, 0, fmt.Errorf("ring does not return to %s, ends at %s", s.cfg.StartAsset, cur)
	}

	ret := utils.CalculateCycleReturn(rates, fees)
	return &models.ArbitrageCycle{Orders: orders, Direction: direction}, ret, nil
}
