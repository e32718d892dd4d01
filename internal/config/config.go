package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Book      BookConfig
	Execution ExecutionConfig
	Feed      FeedConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // AES-256 ключ для шифрования API ключей бирж
	APIPassword   string // bcrypt-хэш пароля для управляющего API
}

// BookConfig - настройки книги ордеров
type BookConfig struct {
	Mode string // "cex" или "dex" - правило вытеснения при кроссе
}

// ExecutionConfig - настройки исполнения циклов
type ExecutionConfig struct {
	BuySafetyMultiplier float64       // запас по котируемой валюте на покупках
	FailureCooldown     time.Duration // пауза после разворота
	FailedLegTolerance  int           // порог аварийной остановки по проваленным ногам
	CancelExpiry        time.Duration // срок подавления повторных запросов отмены
	TickInterval        time.Duration // период тиков цикла стратегии
}

// FeedConfig - настройки потока данных книги
type FeedConfig struct {
	WSReconnectDelay time.Duration // стартовая задержка перед переподключением WS
	WSPingInterval   time.Duration // интервал ping для поддержания соединения
	WSReadTimeout    time.Duration // таймаут чтения WS сообщений
	SnapshotURL      string        // REST endpoint для снапшотов книги
	StreamURL        string        // WS endpoint для дифов
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level      string
	Format     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "cyclebot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			APIPassword:   getEnv("API_PASSWORD_HASH", ""),
		},
		Book: BookConfig{
			Mode: getEnv("BOOK_MODE", "cex"),
		},
		Execution: ExecutionConfig{
			BuySafetyMultiplier: getEnvAsFloat("BUY_SAFETY_MULTIPLIER", 1.05),
			FailureCooldown:     getEnvAsDuration("FAILURE_COOLDOWN", 60*time.Second),
			FailedLegTolerance:  getEnvAsInt("FAILED_LEG_TOLERANCE", 100),
			CancelExpiry:        getEnvAsDuration("CANCEL_EXPIRY", 60*time.Second),
			TickInterval:        getEnvAsDuration("TICK_INTERVAL", 200*time.Millisecond),
		},
		Feed: FeedConfig{
			WSReconnectDelay: getEnvAsDuration("WS_RECONNECT_DELAY", 2*time.Second),
			WSPingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),
			SnapshotURL:      getEnv("FEED_SNAPSHOT_URL", ""),
			StreamURL:        getEnv("FEED_STREAM_URL", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			FilePath:   getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей бирж
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Режим книги определяет правило вытеснения при кроссе
	if c.Book.Mode != "cex" && c.Book.Mode != "dex" {
		return fmt.Errorf("BOOK_MODE must be \"cex\" or \"dex\", got %q", c.Book.Mode)
	}

	// Запас на покупках не может быть меньше единицы
	if c.Execution.BuySafetyMultiplier < 1.0 {
		return fmt.Errorf("BUY_SAFETY_MULTIPLIER must be >= 1.0, got %v", c.Execution.BuySafetyMultiplier)
	}

	if c.Execution.FailedLegTolerance < 0 {
		return fmt.Errorf("FAILED_LEG_TOLERANCE cannot be negative, got %d", c.Execution.FailedLegTolerance)
	}

	if c.Execution.FailureCooldown <= 0 {
		return fmt.Errorf("FAILURE_COOLDOWN must be positive, got %v", c.Execution.FailureCooldown)
	}

	if c.Execution.CancelExpiry <= 0 {
		return fmt.Errorf("CANCEL_EXPIRY must be positive, got %v", c.Execution.CancelExpiry)
	}

	if c.Execution.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %v", c.Execution.TickInterval)
	}

	if c.Feed.WSReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Feed.WSReadTimeout)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
