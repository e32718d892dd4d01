package utils

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"garbage", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitLogger_ConsoleOnly(t *testing.T) {
	logger, err := InitLogger(LoggerConfig{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("logger is nil")
	}
	logger.Debug("test message")
	_ = logger.Sync()
}

func TestInitLogger_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	logger, err := InitLogger(LoggerConfig{Level: "info", Format: "json", FilePath: path})
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	logger.Info("file sink works")
	_ = logger.Sync()
}
