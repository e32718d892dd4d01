// Package integration contains integration tests for the cycle trading bot.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle through the router
// - WebSocket tests: connection, broadcast messaging
// - Database tests: repositories against a real Postgres
//
// API and WebSocket tests run against an in-process paper market and need
// no external services. Database tests connect to Postgres configured via
// TEST_DB_* environment variables and skip when it is unreachable.
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"cyclebot/internal/api"
	"cyclebot/internal/api/handlers"
	"cyclebot/internal/bot"
	"cyclebot/internal/book"
	"cyclebot/internal/exchange"
	"cyclebot/internal/models"
	"cyclebot/internal/websocket"
)

// TestConfig contains database configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "cyclebot_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection, skipping when unavailable
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil, func() {}
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// initTestTables creates the schema used by the repositories
func initTestTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			client_order_id TEXT PRIMARY KEY,
			market TEXT NOT NULL,
			trading_pair TEXT NOT NULL,
			is_buy BOOLEAN NOT NULL,
			base_asset TEXT NOT NULL,
			quote_asset TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			filled_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			market TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			meta JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS markets (
			name TEXT PRIMARY KEY,
			api_key_enc TEXT NOT NULL,
			api_secret_enc TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// truncateTables clears journal tables between tests
func truncateTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"orders", "notifications", "markets"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("failed to clear table %s: %v", table, err)
		}
	}
}

// TestServer encapsulates the in-process stack for API and WebSocket tests.
// It runs against the paper market and needs no database.
type TestServer struct {
	Router  *mux.Router
	Server  *httptest.Server
	Hub     *websocket.Hub
	Paper   *exchange.PaperConnector
	Tracker *bot.OrderTracker
	Loop    *bot.StrategyLoop
	Cleanup func()
}

// newLocalServer wraps a handler in an httptest server
func newLocalServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

// SetupTestServer builds the full router over a seeded paper market
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	paper := exchange.NewPaperConnector(exchange.PaperConfig{
		Name:     "paper",
		BookMode: book.ModeCentralized,
		InitialBalances: map[string]float64{
			"USDT": 10000,
			"BTC":  1,
		},
		Rules: map[string]exchange.TradingRules{
			"BTC-USDT": {TradingPair: "BTC-USDT", LotSize: 0.0001, MinQty: 0.001},
		},
	}, nil)

	if err := paper.SeedBook("BTC-USDT",
		[]book.Level{{Price: 99.5, Amount: 2}},
		[]book.Level{{Price: 100.5, Amount: 2}}, 1); err != nil {
		t.Fatalf("failed to seed book: %v", err)
	}

	tracker := bot.NewOrderTracker()
	dispatcher := bot.NewEventDispatcher(tracker, nil)
	execution := bot.NewExecutionTracker(bot.DefaultExecutionConfig(),
		map[string]exchange.MarketConnector{"paper": paper},
		tracker, make(chan *models.Notification, 16), nil)

	loop, err := bot.NewStrategyLoop(
		map[string]exchange.MarketConnector{"paper": paper},
		tracker, dispatcher, execution, nil,
		bot.NewRealClock(time.Minute), nil)
	if err != nil {
		t.Fatalf("failed to build strategy loop: %v", err)
	}

	hub := websocket.NewHub(nil)
	go hub.Run()

	router := api.SetupRoutes(&api.Dependencies{
		Status:       loop,
		Books:        map[string]handlers.BookViewer{"paper": paper},
		ActiveOrders: tracker,
		Connectors:   bot.ObserverHandles(map[string]exchange.MarketConnector{"paper": paper}),
		Assets:       []string{"BTC", "USDT"},
		Hub:          hub,
	})

	server := httptest.NewServer(router)

	return &TestServer{
		Router:  router,
		Server:  server,
		Hub:     hub,
		Paper:   paper,
		Tracker: tracker,
		Loop:    loop,
		Cleanup: func() {
			server.Close()
			hub.Stop()
			paper.Close()
		},
	}
}
