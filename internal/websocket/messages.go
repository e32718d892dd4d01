package websocket

import (
	"time"

	"cyclebot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeBookUpdate - обновление вершины книги ордеров
	MessageTypeBookUpdate MessageType = "bookUpdate"

	// MessageTypeStrategyUpdate - снимок состояния цикла стратегии
	MessageTypeStrategyUpdate MessageType = "strategyUpdate"

	// MessageTypeNotification - новое уведомление
	MessageTypeNotification MessageType = "notification"

	// MessageTypeBalanceUpdate - обновление баланса рынка
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// BookUpdateMessage - вершина книги по одной паре
type BookUpdateMessage struct {
	BaseMessage
	Market string          `json:"market"`
	Pair   string          `json:"pair"`
	Data   *BookUpdateData `json:"data"`
}

// BookUpdateData - данные вершины книги
type BookUpdateData struct {
	BestBidPrice  float64 `json:"best_bid_price"`
	BestBidAmount float64 `json:"best_bid_amount"`
	BestAskPrice  float64 `json:"best_ask_price"`
	BestAskAmount float64 `json:"best_ask_amount"`

	// Спред в процентах от лучшего бида
	Spread float64 `json:"spread"`
}

// StrategyUpdateMessage - снимок состояния стратегии
//
// Содержит состояние машины исполнения (READY, EXECUTING, REVERSING,
// COOLING_DOWN, HALTED), накопленный счётчик проваленных ног и число
// отслеживаемых ордеров. Отправляется на каждый тик при изменениях.
type StrategyUpdateMessage struct {
	BaseMessage
	Data *StrategyUpdateData `json:"data"`
}

// StrategyUpdateData - данные состояния стратегии
type StrategyUpdateData struct {
	State         string    `json:"state"`
	FailedLegs    int       `json:"failed_legs"`
	TrackedOrders int       `json:"tracked_orders"`
	TicksSeen     uint64    `json:"ticks_seen"`
	LastTickAt    time.Time `json:"last_tick_at"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData - данные уведомления
type NotificationData struct {
	ID        int                    `json:"id"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Market    string                 `json:"market,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// BalanceUpdateMessage - сообщение об обновлении баланса рынка
type BalanceUpdateMessage struct {
	BaseMessage
	Market  string  `json:"market"`
	Asset   string  `json:"asset"`
	Balance float64 `json:"balance"`
}

// ============ Фабричные функции для создания сообщений ============

// NewBookUpdateMessage создает сообщение вершины книги
func NewBookUpdateMessage(market, pair string, bidPrice, bidAmount, askPrice, askAmount float64) *BookUpdateMessage {
	var spread float64
	if bidPrice > 0 {
		spread = (askPrice - bidPrice) / bidPrice * 100
	}
	return &BookUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBookUpdate,
			Timestamp: time.Now(),
		},
		Market: market,
		Pair:   pair,
		Data: &BookUpdateData{
			BestBidPrice:  bidPrice,
			BestBidAmount: bidAmount,
			BestAskPrice:  askPrice,
			BestAskAmount: askAmount,
			Spread:        spread,
		},
	}
}

// NewStrategyUpdateMessage создает сообщение состояния стратегии
func NewStrategyUpdateMessage(state string, failedLegs, trackedOrders int, ticksSeen uint64, lastTickAt time.Time) *StrategyUpdateMessage {
	return &StrategyUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStrategyUpdate,
			Timestamp: time.Now(),
		},
		Data: &StrategyUpdateData{
			State:         state,
			FailedLegs:    failedLegs,
			TrackedOrders: trackedOrders,
			TicksSeen:     ticksSeen,
			LastTickAt:    lastTickAt,
		},
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: &NotificationData{
			ID:        notif.ID,
			Type:      notif.Type,
			Severity:  notif.Severity,
			Market:    notif.Market,
			Message:   notif.Message,
			Meta:      notif.Meta,
			Timestamp: notif.Timestamp,
		},
	}
}

// NewBalanceUpdateMessage создает сообщение обновления баланса
func NewBalanceUpdateMessage(market, asset string, balance float64) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceUpdate,
			Timestamp: time.Now(),
		},
		Market:  market,
		Asset:   asset,
		Balance: balance,
	}
}
