package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logger.go - настройка структурированного логирования
//
// Назначение:
// Инициализация zap-логгера с выводом в консоль и (опционально) в файл
// с ротацией через lumberjack.
//
// Уровни: debug, info, warn, error.
// Формат: json или console.

// LoggerConfig - параметры инициализации логгера
type LoggerConfig struct {
	Level    string // debug | info | warn | error
	Format   string // json | console
	FilePath string // пусто = только stdout

	// Параметры ротации файла
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogger создаёт и настраивает глобальный zap-логгер.
//
// Логгер пишет в stdout всегда; если задан FilePath, дополнительно
// пишет в файл с ротацией. Возвращённый логгер следует прокидывать
// зависимостям явно, глобальный zap.L() тоже заменяется.
func InitLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    defaultInt(cfg.MaxSizeMB, 100),
			MaxBackups: defaultInt(cfg.MaxBackups, 5),
			MaxAge:     defaultInt(cfg.MaxAgeDays, 30),
			Compress:   true,
		}
		// В файл всегда пишем JSON - его читают машины
		fileEncoder := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// NewTestLogger возвращает no-op логгер для тестов
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
