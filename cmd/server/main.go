package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"cyclebot/internal/api"
	"cyclebot/internal/api/handlers"
	"cyclebot/internal/bot"
	"cyclebot/internal/config"
	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/internal/repository"
	"cyclebot/internal/websocket"
	"cyclebot/pkg/ratelimit"
	"cyclebot/pkg/utils"
)

const (
	marketName = "paper"

	// Период фоновых рассылок в WebSocket и срок хранения журналов
	broadcastInterval = time.Second
	journalRetention  = 30 // дней
)

// Торговое кольцо дев-стенда
var (
	ringPairs  = [3]string{"BTC-USDT", "ETH-BTC", "ETH-USDT"}
	ringAssets = []string{"BTC", "ETH", "USDT"}
)

func main() {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.InitLogger(utils.LoggerConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Контекст всего процесса: SIGINT/SIGTERM начинают остановку
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// База данных и репозитории
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	orderRepo := repository.NewOrderRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	marketRepo, err := repository.NewMarketRepository(db, []byte(cfg.Security.EncryptionKey))
	if err != nil {
		logger.Fatal("failed to init market repository", zap.Error(err))
	}
	if names, err := marketRepo.List(); err != nil {
		logger.Warn("failed to list stored market credentials", zap.Error(err))
	} else {
		logger.Info("stored market credentials", zap.Strings("markets", names))
	}

	// Симулируемый рынок и его книги
	paper := exchange.NewPaperConnector(paperConfig(cfg), logger)
	defer paper.Close()
	connectors := map[string]exchange.MarketConnector{marketName: paper}

	// Внешний фид глубины, если задан: диффы и снапшоты льются в книги paper
	if cfg.Feed.StreamURL != "" {
		reconnect := exchange.DefaultWSReconnectConfig()
		reconnect.InitialDelay = cfg.Feed.WSReconnectDelay
		reconnect.PingInterval = cfg.Feed.WSPingInterval
		reconnect.PongTimeout = cfg.Feed.WSReadTimeout

		feed := exchange.NewDepthFeed(exchange.DepthFeedConfig{
			Market:      marketName,
			WSURL:       cfg.Feed.StreamURL,
			SnapshotURL: cfg.Feed.SnapshotURL,
			Pairs:       ringPairs[:],
			Reconnect:   reconnect,
		}, paper, logger)
		if err := feed.Start(); err != nil {
			logger.Error("depth feed connect failed, continuing without it", zap.Error(err))
		} else {
			defer feed.Stop()
		}
	}

	// Ядро стратегии
	tracker := bot.NewOrderTrackerWithExpiry(cfg.Execution.CancelExpiry)
	dispatcher := bot.NewEventDispatcher(tracker, logger)

	notifyCh := make(chan *models.Notification, 256)
	execution := bot.NewExecutionTracker(bot.ExecutionConfig{
		BuySafetyMultiplier: cfg.Execution.BuySafetyMultiplier,
		FailureCooldown:     cfg.Execution.FailureCooldown,
		FailedLegTolerance:  cfg.Execution.FailedLegTolerance,
	}, connectors, tracker, notifyCh, logger)

	journal := bot.NewOrderJournal(orderRepo, logger)
	if err := dispatcher.AddDelegate(journal); err != nil {
		logger.Fatal("failed to register order journal", zap.Error(err))
	}
	go journal.Run(ctx)

	scanner, err := bot.NewTriangularScanner(bot.ScannerConfig{
		Market:     marketName,
		Ring:       ringPairs,
		StartAsset: "USDT",
		Notional:   1000,
		MinReturn:  0.1, // процентов, после комиссий
		Fees:       paperFees(),
	}, paper, logger)
	if err != nil {
		logger.Fatal("failed to build cycle scanner", zap.Error(err))
	}

	loop, err := bot.NewStrategyLoop(
		connectors,
		tracker,
		dispatcher,
		execution,
		scanner,
		bot.NewRealClock(cfg.Execution.TickInterval),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to build strategy loop", zap.Error(err))
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("strategy loop exited", zap.Error(err))
		}
	}()

	// WebSocket hub и фоновые рассылки
	hub := websocket.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	go drainNotifications(ctx, notifyCh, notifRepo, hub, logger)
	go broadcastState(ctx, paper, loop, hub)
	go cleanupJournals(ctx, orderRepo, notifRepo, logger)

	// HTTP API
	router := api.SetupRoutes(&api.Dependencies{
		Status:          loop,
		Books:           map[string]handlers.BookViewer{marketName: paper},
		ActiveOrders:    tracker,
		OrderStore:      orderRepo,
		Notifications:   notifRepo,
		Connectors:      bot.ObserverHandles(connectors),
		Assets:          ringAssets,
		Hub:             hub,
		APIPasswordHash: cfg.Security.APIPassword,
		Limiter:         ratelimit.NewRateLimiter(50, 100),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Сначала останавливаем торговлю, потом HTTP
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited", zap.String("uptime", utils.FormatDuration(time.Since(start))))
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// paperConfig - дев-стенд: три книги кольца, стартовые балансы и правила
func paperConfig(cfg *config.Config) exchange.PaperConfig {
	rules := make(map[string]exchange.TradingRules, len(ringPairs))
	for _, pair := range ringPairs {
		rules[pair] = exchange.TradingRules{
			TradingPair: pair,
			LotSize:     0.0001,
			MinQty:      0.001,
		}
	}
	return exchange.PaperConfig{
		Name:     marketName,
		BookMode: cfg.Book.Mode,
		InitialBalances: map[string]float64{
			"USDT": 100000,
			"BTC":  5,
			"ETH":  50,
		},
		Rules: rules,
		Fees:  paperFees(),
	}
}

func paperFees() map[string]float64 {
	fees := make(map[string]float64, len(ringPairs))
	for _, pair := range ringPairs {
		fees[pair] = 0.001
	}
	return fees
}

// drainNotifications сохраняет уведомления ядра в БД и транслирует их в WebSocket
func drainNotifications(
	ctx context.Context,
	ch <-chan *models.Notification,
	repo *repository.NotificationRepository,
	hub *websocket.Hub,
	logger *zap.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ch:
			if err := repo.Create(n); err != nil {
				logger.Error("failed to persist notification",
					zap.String("type", n.Type), zap.Error(err))
			}
			hub.BroadcastNotification(n)
		}
	}
}

// broadcastState периодически рассылает верхи книг, состояние стратегии
// и балансы всем WebSocket-клиентам
func broadcastState(ctx context.Context, paper *exchange.PaperConnector, loop *bot.StrategyLoop, hub *websocket.Hub) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pair := range ringPairs {
				bid, ask, ok := paper.BookTop(pair)
				if !ok {
					continue
				}
				hub.BroadcastBookUpdate(marketName, pair, bid.Price, bid.Amount, ask.Price, ask.Amount)
			}

			snap := loop.Snapshot()
			hub.BroadcastStrategyUpdate(snap.State, snap.FailedLegs, snap.TrackedOrders, snap.TicksSeen, snap.LastTickAt)

			for _, asset := range ringAssets {
				hub.BroadcastBalanceUpdate(marketName, asset, paper.GetBalance(asset))
			}
		}
	}
}

// cleanupJournals раз в сутки удаляет устаревшие записи журналов
func cleanupJournals(
	ctx context.Context,
	orders *repository.OrderRepository,
	notifications *repository.NotificationRepository,
	logger *zap.Logger,
) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := utils.GetDayStartFrom(time.Now().UTC().AddDate(0, 0, -journalRetention))

			if n, err := orders.DeleteOlderThan(cutoff); err != nil {
				logger.Error("order journal cleanup failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("order journal cleaned", zap.Int64("deleted", n))
			}

			if n, err := notifications.DeleteOlderThan(cutoff); err != nil {
				logger.Error("notification cleanup failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("notifications cleaned", zap.Int64("deleted", n))
			}
		}
	}
}
