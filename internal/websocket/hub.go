package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"cyclebot/internal/models"
)

var hubJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов убирает аллокации при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Центральный менеджер для broadcast сообщений всем подключенным клиентам:
// вершины книг, состояние стратегии, уведомления и балансы уходят на
// frontend без polling.
//
// Использование:
// 1. Создать hub: hub := NewHub(logger)
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.Broadcast(message)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка главного цикла
	done chan struct{}

	// Сообщения, отброшенные при переполнении broadcast канала
	droppedMessages uint64

	logger *zap.Logger

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Рассылка идёт без удержания Lock: копируем список под коротким RLock,
// отправляем, затем удаляем медленных клиентов под Write Lock.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			// Клиент, не успевающий читать, помечается на удаление
			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("removed slow websocket clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total", total))
			}
		}
	}
}

// Broadcast отправляет сообщение всем подключенным клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := hubJSON.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("broadcast message marshal failed", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные, буфер вернётся в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw отправляет уже сериализованное сообщение.
// Отправка неблокирующая: при переполнении канала сообщение отбрасывается.
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		atomic.AddUint64(&h.droppedMessages, 1)
	}
}

// Stop останавливает главный цикл и закрывает всех клиентов
func (h *Hub) Stop() {
	close(h.done)
}

// DroppedMessages возвращает число отброшенных broadcast сообщений
func (h *Hub) DroppedMessages() uint64 {
	return atomic.LoadUint64(&h.droppedMessages)
}

// BroadcastBookUpdate отправляет вершину книги по паре
func (h *Hub) BroadcastBookUpdate(market, pair string, bidPrice, bidAmount, askPrice, askAmount float64) {
	h.Broadcast(NewBookUpdateMessage(market, pair, bidPrice, bidAmount, askPrice, askAmount))
}

// BroadcastStrategyUpdate отправляет снимок состояния стратегии
func (h *Hub) BroadcastStrategyUpdate(state string, failedLegs, trackedOrders int, ticksSeen uint64, lastTickAt time.Time) {
	h.Broadcast(NewStrategyUpdateMessage(state, failedLegs, trackedOrders, ticksSeen, lastTickAt))
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// BroadcastBalanceUpdate отправляет обновление баланса рынка
func (h *Hub) BroadcastBalanceUpdate(market, asset string, balance float64) {
	h.Broadcast(NewBalanceUpdateMessage(market, asset, balance))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
