package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cyclebot/internal/api/handlers"
	"cyclebot/internal/api/middleware"
	"cyclebot/internal/exchange"
	"cyclebot/internal/websocket"
	"cyclebot/pkg/ratelimit"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Status        handlers.StatusProvider
	Books         map[string]handlers.BookViewer
	ActiveOrders  handlers.ActiveOrderSource
	OrderStore    handlers.OrderStore
	Notifications handlers.NotificationStore

	// Коннекторы для чтения балансов; передавать хэндлы наблюдателей,
	// право торговать остаётся у цикла стратегии
	Connectors map[string]exchange.MarketConnector
	Assets     []string
	Hub           *websocket.Hub

	// bcrypt-хэш пароля API; пустой = без аутентификации
	APIPasswordHash string

	// Лимитер входящих запросов к /api/v1; nil = без лимита
	Limiter *ratelimit.RateLimiter
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /status - состояние цикла стратегии
//	├── /books - список рынков и пар
//	├── /books/{market}/{pair} - верхние уровни книги
//	├── /orders - активные ордера трекера
//	├── /orders/history - журнал ордеров из БД
//	├── /balances - балансы рынков
//	└── /notifications
//	    ├── GET / - получить уведомления
//	    └── DELETE / - очистить журнал
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
// /health - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. RateLimit + BasicAuth (только для /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// API v1 routes
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if deps.Limiter != nil {
		apiRouter.Use(middleware.RateLimit(deps.Limiter))
	}
	apiRouter.Use(middleware.BasicAuth(deps.APIPasswordHash))

	if deps.Status != nil {
		statusHandler := handlers.NewStatusHandler(deps.Status)
		apiRouter.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
	}

	if deps.Books != nil {
		bookHandler := handlers.NewBookHandler(deps.Books)
		apiRouter.HandleFunc("/books", bookHandler.GetBooks).Methods("GET")
		apiRouter.HandleFunc("/books/{market}/{pair}", bookHandler.GetBook).Methods("GET")
	}

	if deps.ActiveOrders != nil {
		orderHandler := handlers.NewOrderHandler(deps.ActiveOrders, deps.OrderStore)
		apiRouter.HandleFunc("/orders", orderHandler.GetActiveOrders).Methods("GET")
		apiRouter.HandleFunc("/orders/history", orderHandler.GetOrderHistory).Methods("GET")
	}

	if deps.Connectors != nil {
		balanceHandler := handlers.NewBalanceHandler(deps.Connectors, deps.Assets)
		apiRouter.HandleFunc("/balances", balanceHandler.GetBalances).Methods("GET")
	}

	if deps.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
		apiRouter.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		apiRouter.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	// WebSocket route
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
