package book

import "fmt"

// Агрегация уровня из отдельных ордеров. Используется симулируемыми книгами
// (paper-коннектор), где уровень складывается из ордеров с известными id,
// а не приходит готовым агрегатом от биржи.

// addOrder добавляет вклад ордера в уровень стороны.
// Повторное добавление того же id на тот же уровень - ошибка вызывающего.
func (s *side) addOrder(orderID string, price, amount float64, updateID int64) error {
	l, ok := s.levels[price]
	if !ok {
		s.upsert(price, 0, updateID)
		l = s.levels[price]
	}
	if l.contributions == nil {
		l.contributions = make(map[string]float64)
	}
	if _, exists := l.contributions[orderID]; exists {
		return fmt.Errorf("order %s already contributes to level %v", orderID, price)
	}
	l.contributions[orderID] = amount
	l.OrderIDs = append(l.OrderIDs, orderID) // порядок вставки = приоритет
	l.Amount += amount
	if updateID > l.UpdateID {
		l.UpdateID = updateID
	}
	return nil
}

// removeOrder убирает вклад ордера; последний вклад удаляет уровень целиком
func (s *side) removeOrder(orderID string, price float64) bool {
	l, ok := s.levels[price]
	if !ok || l.contributions == nil {
		return false
	}
	amount, exists := l.contributions[orderID]
	if !exists {
		return false
	}
	delete(l.contributions, orderID)
	for i, id := range l.OrderIDs {
		if id == orderID {
			l.OrderIDs = append(l.OrderIDs[:i], l.OrderIDs[i+1:]...)
			break
		}
	}
	l.Amount -= amount
	if len(l.contributions) == 0 || l.Amount <= 0 {
		s.remove(price)
	}
	return true
}

// AddOrder добавляет ордер с известным id в книгу и разрешает пересечения.
// Инвариант уровня: Amount = сумма вкладов всех OrderIDs.
func (b *Book) AddOrder(isBid bool, orderID string, price, amount float64, updateID int64) error {
	if amount <= 0 {
		return fmt.Errorf("order %s: amount must be positive", orderID)
	}
	s := b.asks
	if isBid {
		s = b.bids
	}
	if err := s.addOrder(orderID, price, amount, updateID); err != nil {
		return err
	}
	b.truncate()
	return nil
}

// RemoveOrder убирает вклад ордера из книги; отсутствующий ордер - no-op
func (b *Book) RemoveOrder(isBid bool, orderID string, price float64) bool {
	s := b.asks
	if isBid {
		s = b.bids
	}
	return s.removeOrder(orderID, price)
}
