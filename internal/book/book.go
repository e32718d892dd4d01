package book

import (
	"errors"
	"sort"
)

// Режимы разрешения пересечённой книги (best_bid >= best_ask)
//
//   - ModeCentralized: побеждает уровень с более НОВЫМ update_id - биржа уже
//     разрешила пересечение, наш фид просто отставал; старый уровень вытесняется.
//   - ModeDEX: побеждает уровень с БОЛЬШИМ notional (price*amount) - предполагаем,
//     что крупная резидентная ликвидность переживёт блок, в котором исполнится
//     пересекающая сделка; меньший уровень вытесняется.
//
// При точном равенстве в обоих режимах вытесняется уровень со стороны ask.
// Это произвольное, но фиксированное соглашение - тесты полагаются на него.
const (
	ModeCentralized = "cex"
	ModeDEX         = "dex"
)

// Ошибки книги
var (
	ErrUnknownMode           = errors.New("unknown truncation mode")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for requested volume")
)

// PriceLevel - агрегированный уровень цены одной стороны книги.
//
// Инвариант: Amount равен сумме вкладов всех OrderIDs уровня (когда уровень
// собран из отдельных ордеров); удаление последнего ордера удаляет уровень.
// Для уровней, пришедших агрегированными диффами, OrderIDs пуст.
type PriceLevel struct {
	Price    float64  `json:"price"`
	Amount   float64  `json:"amount"`
	UpdateID int64    `json:"update_id"`
	OrderIDs []string `json:"order_ids,omitempty"` // порядок вставки = приоритет

	// Вклады отдельных ордеров (только для уровней, собранных по ордерам)
	contributions map[string]float64
}

// Notional возвращает price*amount уровня
func (l *PriceLevel) Notional() float64 {
	return l.Price * l.Amount
}

// Level - входной уровень снапшота
type Level struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// side - одна сторона книги: map цена → уровень плюс отсортированный индекс цен.
//
// Индекс всегда хранится по возрастанию; лучшая цена - последний элемент для
// bid и первый для ask. Вставка/удаление через binary search: O(log n) поиск,
// O(n) сдвиг - при типичной глубине книги это дешевле дерева.
type side struct {
	bid    bool
	levels map[float64]*PriceLevel
	prices []float64 // по возрастанию

	// Надгробия удалённых диффами уровней: цена → update_id удаления.
	// Без них более старый дифф, пришедший после удаления, воскресил бы
	// уровень - у отсутствующего уровня не с чем сравнить update_id.
	// Вытеснения при разрешении пересечений надгробий НЕ оставляют:
	// это локальное решение, а не событие биржи.
	deleted map[float64]int64
}

func newSide(bid bool) *side {
	return &side{
		bid:     bid,
		levels:  make(map[float64]*PriceLevel),
		deleted: make(map[float64]int64),
	}
}

// best возвращает уровень с лучшей ценой стороны
func (s *side) best() (*PriceLevel, bool) {
	if len(s.prices) == 0 {
		return nil, false
	}
	if s.bid {
		return s.levels[s.prices[len(s.prices)-1]], true
	}
	return s.levels[s.prices[0]], true
}

// get возвращает уровень по цене
func (s *side) get(price float64) (*PriceLevel, bool) {
	l, ok := s.levels[price]
	return l, ok
}

// upsert вставляет или заменяет агрегированный уровень
func (s *side) upsert(price, amount float64, updateID int64) {
	if l, ok := s.levels[price]; ok {
		l.Amount = amount
		l.UpdateID = updateID
		l.OrderIDs = nil
		l.contributions = nil
		return
	}
	s.levels[price] = &PriceLevel{Price: price, Amount: amount, UpdateID: updateID}
	idx := sort.SearchFloat64s(s.prices, price)
	s.prices = append(s.prices, 0)
	copy(s.prices[idx+1:], s.prices[idx:])
	s.prices[idx] = price
}

// remove удаляет уровень целиком
func (s *side) remove(price float64) {
	if _, ok := s.levels[price]; !ok {
		return
	}
	delete(s.levels, price)
	idx := sort.SearchFloat64s(s.prices, price)
	if idx < len(s.prices) && s.prices[idx] == price {
		s.prices = append(s.prices[:idx], s.prices[idx+1:]...)
	}
}

// reset очищает сторону, включая надгробия: снапшот - новая точка отсчёта
func (s *side) reset() {
	s.levels = make(map[float64]*PriceLevel)
	s.prices = s.prices[:0]
	s.deleted = make(map[float64]int64)
}

// depth возвращает число уровней стороны
func (s *side) depth() int {
	return len(s.prices)
}

// walk обходит уровни от лучшей цены к худшей
func (s *side) walk(fn func(*PriceLevel) bool) {
	if s.bid {
		for i := len(s.prices) - 1; i >= 0; i-- {
			if !fn(s.levels[s.prices[i]]) {
				return
			}
		}
		return
	}
	for _, p := range s.prices {
		if !fn(s.levels[p]) {
			return
		}
	}
}

// Book - книга заявок одной торговой пары с разрешением пересечений.
//
// Владелец книги - фид коннектора этой пары; стратегии только читают
// best-price/volume запросы. Внутренних блокировок нет: все мутации
// выполняются синхронно в одном акторе (см. модель исполнения бота).
type Book struct {
	TradingPair string
	mode        string

	bids *side
	asks *side

	// update_id последнего применённого снапшота: диффы старше него
	// не могут воскресить уже заменённые уровни
	snapshotID int64
}

// New создаёт пустую книгу. Неизвестный режим трактуется как ModeCentralized
func New(tradingPair, mode string) *Book {
	if mode != ModeCentralized && mode != ModeDEX {
		mode = ModeCentralized
	}
	return &Book{
		TradingPair: tradingPair,
		mode:        mode,
		bids:        newSide(true),
		asks:        newSide(false),
	}
}

// Mode возвращает режим разрешения пересечений
func (b *Book) Mode() string {
	return b.mode
}

// ApplySnapshot атомарно заменяет обе стороны книги.
//
// Все уровни получают update_id снапшота. После замены выполняется
// разрешение пересечений (снапшот от биржи пересечённым быть не должен,
// но фид обязан быть устойчив к мусору).
func (b *Book) ApplySnapshot(bids, asks []Level, updateID int64) int {
	b.bids.reset()
	b.asks.reset()
	for _, lv := range bids {
		if lv.Amount <= 0 {
			continue
		}
		b.bids.upsert(lv.Price, lv.Amount, updateID)
	}
	for _, lv := range asks {
		if lv.Amount <= 0 {
			continue
		}
		b.asks.upsert(lv.Price, lv.Amount, updateID)
	}
	b.snapshotID = updateID
	evicted := b.truncate()
	snapshotsApplied.WithLabelValues(b.TradingPair).Inc()
	return evicted
}

// ApplyDiff применяет одно инкрементальное обновление уровня.
//
// amount == 0 означает удаление уровня. Дифф с update_id, не новее
// записанного на уровне (или не новее последнего снапшота, или не новее
// удаления этого уровня), молча отбрасывается - повторная доставка
// безопасна (идемпотентность), и запоздавший дифф не воскрешает
// удалённый уровень.
//
// Возвращает (применён ли дифф, число вытесненных при разрешении уровней).
func (b *Book) ApplyDiff(isBid bool, price, amount float64, updateID int64) (bool, int) {
	s := b.asks
	if isBid {
		s = b.bids
	}

	if updateID <= b.snapshotID {
		staleDiffs.WithLabelValues(b.TradingPair).Inc()
		return false, 0
	}
	if l, ok := s.get(price); ok && updateID <= l.UpdateID {
		staleDiffs.WithLabelValues(b.TradingPair).Inc()
		return false, 0
	}
	if del, ok := s.deleted[price]; ok && updateID <= del {
		staleDiffs.WithLabelValues(b.TradingPair).Inc()
		return false, 0
	}

	if amount <= 0 {
		// Нулевой объём = удаление с надгробием; удаление отсутствующего
		// уровня - no-op, но надгробие всё равно запоминаем
		s.remove(price)
		s.deleted[price] = updateID
		diffsApplied.WithLabelValues(b.TradingPair).Inc()
		return true, 0
	}

	delete(s.deleted, price)
	s.upsert(price, amount, updateID)
	diffsApplied.WithLabelValues(b.TradingPair).Inc()
	return true, b.truncate()
}

// BestBid возвращает лучший уровень bid
func (b *Book) BestBid() (PriceLevel, bool) {
	l, ok := b.bids.best()
	if !ok {
		return PriceLevel{}, false
	}
	return *l, true
}

// BestAsk возвращает лучший уровень ask
func (b *Book) BestAsk() (PriceLevel, bool) {
	l, ok := b.asks.best()
	if !ok {
		return PriceLevel{}, false
	}
	return *l, true
}

// IsCrossed возвращает true, если best_bid >= best_ask
func (b *Book) IsCrossed() bool {
	bb, okB := b.bids.best()
	ba, okA := b.asks.best()
	return okB && okA && bb.Price >= ba.Price
}

// truncate разрешает пересечение книги согласно режиму.
//
// Каждая итерация строго удаляет ровно один уровень, поэтому цикл
// завершается за O(k), где k - число пересекающихся уровней.
// Пустая сторона - пересечения нет, no-op.
func (b *Book) truncate() int {
	evicted := 0
	for {
		bb, okB := b.bids.best()
		ba, okA := b.asks.best()
		if !okB || !okA || bb.Price < ba.Price {
			break
		}

		evictAsk := true
		switch b.mode {
		case ModeCentralized:
			// Вытесняем уровень с более СТАРЫМ update_id; равенство → ask
			if bb.UpdateID < ba.UpdateID {
				evictAsk = false
			}
		case ModeDEX:
			// Вытесняем уровень с МЕНЬШИМ notional; равенство → ask
			if bb.Notional() < ba.Notional() {
				evictAsk = false
			}
		}

		if evictAsk {
			b.asks.remove(ba.Price)
			levelsEvicted.WithLabelValues(b.TradingPair, b.mode, "ask").Inc()
		} else {
			b.bids.remove(bb.Price)
			levelsEvicted.WithLabelValues(b.TradingPair, b.mode, "bid").Inc()
		}
		evicted++
	}
	return evicted
}

// GetPriceForVolume возвращает средневзвешенную цену исполнения рыночного
// ордера заданного объёма по текущей книге (VWAP walk).
//
// isBuy=true идёт по ask-уровням, isBuy=false - по bid-уровням.
// Если ликвидности не хватает, возвращается ErrInsufficientLiquidity.
func (b *Book) GetPriceForVolume(isBuy bool, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, errors.New("volume must be positive")
	}

	s := b.bids
	if isBuy {
		s = b.asks
	}

	var cost, filled float64
	remaining := amount
	s.walk(func(l *PriceLevel) bool {
		take := l.Amount
		if take > remaining {
			take = remaining
		}
		cost += l.Price * take
		filled += take
		remaining -= take
		return remaining > 0
	})

	if remaining > 0 {
		return 0, ErrInsufficientLiquidity
	}
	return cost / filled, nil
}

// VolumeForPrice возвращает суммарный объём, доступный не хуже заданной цены
func (b *Book) VolumeForPrice(isBuy bool, price float64) float64 {
	s := b.bids
	if isBuy {
		s = b.asks
	}

	var volume float64
	s.walk(func(l *PriceLevel) bool {
		if isBuy && l.Price > price {
			return false
		}
		if !isBuy && l.Price < price {
			return false
		}
		volume += l.Amount
		return true
	})
	return volume
}

// Depth возвращает глубину сторон (bids, asks)
func (b *Book) Depth() (int, int) {
	return b.bids.depth(), b.asks.depth()
}

// SnapshotLevels возвращает копии уровней от лучшей цены к худшей
// (для API/WebSocket; внутренние структуры наружу не отдаём)
func (b *Book) SnapshotLevels(limit int) (bids, asks []PriceLevel) {
	collect := func(s *side) []PriceLevel {
		out := make([]PriceLevel, 0, limit)
		s.walk(func(l *PriceLevel) bool {
			out = append(out, PriceLevel{
				Price:    l.Price,
				Amount:   l.Amount,
				UpdateID: l.UpdateID,
			})
			return limit <= 0 || len(out) < limit
		})
		return out
	}
	return collect(b.bids), collect(b.asks)
}
