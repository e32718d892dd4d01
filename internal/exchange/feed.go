package exchange

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"cyclebot/internal/book"
	"cyclebot/pkg/ratelimit"
	"cyclebot/pkg/retry"
)

var feedJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// BookSink принимает обновления глубины рынка.
// Реализуется коннекторами, владеющими книгами своих пар.
type BookSink interface {
	SeedBook(tradingPair string, bids, asks []book.Level, updateID int64) error
	ApplyBookDiff(tradingPair string, isBid bool, price, amount float64, updateID int64) error
}

// depthMessage - сообщение фида глубины.
//
// Снапшот: {"type":"snapshot","pair":"BTC-USDT","update_id":N,"bids":[[p,a],...],"asks":[[p,a],...]}
// Дифф:    {"type":"diff","pair":"BTC-USDT","update_id":N,"side":"bid","price":p,"amount":a}
type depthMessage struct {
	Type     string       `json:"type"`
	Pair     string       `json:"pair"`
	UpdateID int64        `json:"update_id"`
	Bids     [][2]float64 `json:"bids,omitempty"`
	Asks     [][2]float64 `json:"asks,omitempty"`
	Side     string       `json:"side,omitempty"`
	Price    float64      `json:"price,omitempty"`
	Amount   float64      `json:"amount"`
}

// depthSubscription - запрос подписки на глубину пары
type depthSubscription struct {
	Op   string `json:"op"`
	Pair string `json:"pair"`
}

// DepthFeedConfig - конфигурация фида глубины
type DepthFeedConfig struct {
	Market      string
	WSURL       string
	SnapshotURL string // REST endpoint снапшота; пусто = снапшоты только по WS
	Pairs       []string
	Reconnect   WSReconnectConfig
}

// DepthFeed - клиент фида глубины рынка.
//
// Держит WebSocket-подписку на снапшоты и диффы книги, парсит сообщения
// и передаёт их в BookSink. После каждого (пере)подключения запрашивает
// свежий REST-снапшот каждой пары: диффы, пропущенные за время разрыва,
// восстановить нельзя, книга обязана начаться заново.
type DepthFeed struct {
	cfg     DepthFeedConfig
	sink    BookSink
	ws      *WSReconnectManager
	rest    *HTTPClient
	limiter *ratelimit.RateLimiter
	logger  *zap.Logger
}

// NewDepthFeed создаёт фид глубины поверх менеджера переподключений
func NewDepthFeed(cfg DepthFeedConfig, sink BookSink, logger *zap.Logger) *DepthFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &DepthFeed{
		cfg:     cfg,
		sink:    sink,
		rest:    GetGlobalHTTPClient(),
		limiter: ratelimit.NewRateLimiter(10, 20),
		logger:  logger.With(zap.String("market", cfg.Market)),
	}

	f.ws = NewWSReconnectManager(cfg.Market, cfg.WSURL, cfg.Reconnect, logger)
	f.ws.SetOnMessage(f.handleMessage)
	f.ws.SetOnConnect(f.handleConnect)
	for _, pair := range cfg.Pairs {
		f.ws.AddSubscription(depthSubscription{Op: "subscribe", Pair: pair})
	}
	return f
}

// Start подключает фид
func (f *DepthFeed) Start() error {
	return f.ws.Connect()
}

// Stop останавливает фид
func (f *DepthFeed) Stop() error {
	return f.ws.Close()
}

// Connected сообщает, подключён ли фид
func (f *DepthFeed) Connected() bool {
	return f.ws.IsConnected()
}

// handleConnect запрашивает свежие снапшоты после (пере)подключения
func (f *DepthFeed) handleConnect() {
	if f.cfg.SnapshotURL == "" {
		return
	}
	for _, pair := range f.cfg.Pairs {
		pair := pair
		go func() {
			if err := f.fetchSnapshot(pair); err != nil {
				f.logger.Error("snapshot fetch failed", zap.String("pair", pair), zap.Error(err))
			}
		}()
	}
}

// fetchSnapshot забирает REST-снапшот пары с ретраями и передаёт его в sink
func (f *DepthFeed) fetchSnapshot(pair string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var msg depthMessage
	err := retry.Do(ctx, func() error {
		// Снапшоты всех пар уходят разом после реконнекта, лимитер
		// держит их в пределах REST-лимитов рынка
		if err := f.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		url := fmt.Sprintf("%s?pair=%s", f.cfg.SnapshotURL, pair)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		return f.rest.GetJSON(req, &msg)
	}, retry.NetworkConfig())
	if err != nil {
		return err
	}
	return f.applySnapshot(&msg)
}

// handleMessage парсит и применяет одно сообщение фида
func (f *DepthFeed) handleMessage(raw []byte) {
	var msg depthMessage
	if err := feedJSON.Unmarshal(raw, &msg); err != nil {
		f.logger.Warn("malformed depth message", zap.Error(err))
		return
	}

	switch msg.Type {
	case "snapshot":
		if err := f.applySnapshot(&msg); err != nil {
			f.logger.Warn("snapshot rejected", zap.String("pair", msg.Pair), zap.Error(err))
		}
	case "diff":
		isBid := msg.Side == "bid"
		if err := f.sink.ApplyBookDiff(msg.Pair, isBid, msg.Price, msg.Amount, msg.UpdateID); err != nil {
			f.logger.Warn("diff rejected", zap.String("pair", msg.Pair), zap.Error(err))
		}
	default:
		// Служебные сообщения (ack подписки и т.п.) игнорируем
	}
}

func (f *DepthFeed) applySnapshot(msg *depthMessage) error {
	bids := make([]book.Level, 0, len(msg.Bids))
	for _, lv := range msg.Bids {
		bids = append(bids, book.Level{Price: lv[0], Amount: lv[1]})
	}
	asks := make([]book.Level, 0, len(msg.Asks))
	for _, lv := range msg.Asks {
		asks = append(asks, book.Level{Price: lv[0], Amount: lv[1]})
	}
	return f.sink.SeedBook(msg.Pair, bids, asks, msg.UpdateID)
}
