package handlers

import (
	"time"

	"cyclebot/internal/bot"
	"cyclebot/internal/book"
	"cyclebot/internal/models"
)

// ============================================================
// Моки зависимостей handlers
// ============================================================

type fakeStatus struct {
	snapshot bot.StrategySnapshot
}

func (f *fakeStatus) Snapshot() bot.StrategySnapshot { return f.snapshot }

type fakeBookViewer struct {
	pairs []string
	bids  []book.PriceLevel
	asks  []book.PriceLevel
}

func (f *fakeBookViewer) Pairs() []string { return f.pairs }

func (f *fakeBookViewer) BookTop(pair string) (book.PriceLevel, book.PriceLevel, bool) {
	if !f.hasPair(pair) {
		return book.PriceLevel{}, book.PriceLevel{}, false
	}
	var bid, ask book.PriceLevel
	if len(f.bids) > 0 {
		bid = f.bids[0]
	}
	if len(f.asks) > 0 {
		ask = f.asks[0]
	}
	return bid, ask, true
}

func (f *fakeBookViewer) BookLevels(pair string, limit int) ([]book.PriceLevel, []book.PriceLevel, bool) {
	if !f.hasPair(pair) {
		return nil, nil, false
	}
	return f.bids, f.asks, true
}

func (f *fakeBookViewer) hasPair(pair string) bool {
	for _, p := range f.pairs {
		if p == pair {
			return true
		}
	}
	return false
}

type fakeActiveOrders struct {
	orders []*models.OrderRecord
}

func (f *fakeActiveOrders) ActiveOrders() []*models.OrderRecord { return f.orders }

type fakeOrderStore struct {
	recent   []*models.OrderRecord
	byStatus []*models.OrderRecord
	err      error

	lastLimit  int
	lastStatus string
}

func (f *fakeOrderStore) GetRecent(limit int) ([]*models.OrderRecord, error) {
	f.lastLimit = limit
	return f.recent, f.err
}

func (f *fakeOrderStore) GetByStatus(status string) ([]*models.OrderRecord, error) {
	f.lastStatus = status
	return f.byStatus, f.err
}

type fakeNotificationStore struct {
	notifications []*models.Notification
	err           error
	cleared       bool

	lastTypes []string
	lastLimit int
}

func (f *fakeNotificationStore) GetRecent(limit int) ([]*models.Notification, error) {
	f.lastLimit = limit
	return f.notifications, f.err
}

func (f *fakeNotificationStore) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	f.lastTypes = types
	f.lastLimit = limit
	return f.notifications, f.err
}

func (f *fakeNotificationStore) DeleteAll() error {
	if f.err != nil {
		return f.err
	}
	f.cleared = true
	return nil
}

func sampleNotification(id int, typ string) *models.Notification {
	return &models.Notification{
		ID:        id,
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Type:      typ,
		Severity:  models.SeverityInfo,
		Market:    "paper",
		Message:   "test",
	}
}
