package config

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef" // 32 байта

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", testKey)
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Book.Mode != "cex" {
		t.Errorf("Book.Mode = %q, want cex", cfg.Book.Mode)
	}
	if cfg.Execution.BuySafetyMultiplier != 1.05 {
		t.Errorf("BuySafetyMultiplier = %v, want 1.05", cfg.Execution.BuySafetyMultiplier)
	}
	if cfg.Execution.FailedLegTolerance != 100 {
		t.Errorf("FailedLegTolerance = %d, want 100", cfg.Execution.FailedLegTolerance)
	}
	if cfg.Execution.FailureCooldown != 60*time.Second {
		t.Errorf("FailureCooldown = %v, want 60s", cfg.Execution.FailureCooldown)
	}
	if cfg.Execution.CancelExpiry != 60*time.Second {
		t.Errorf("CancelExpiry = %v, want 60s", cfg.Execution.CancelExpiry)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BOOK_MODE", "dex")
	t.Setenv("BUY_SAFETY_MULTIPLIER", "1.1")
	t.Setenv("TICK_INTERVAL", "500ms")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Book.Mode != "dex" {
		t.Errorf("Book.Mode = %q, want dex", cfg.Book.Mode)
	}
	if cfg.Execution.BuySafetyMultiplier != 1.1 {
		t.Errorf("BuySafetyMultiplier = %v, want 1.1", cfg.Execution.BuySafetyMultiplier)
	}
	if cfg.Execution.TickInterval != 500*time.Millisecond {
		t.Errorf("TickInterval = %v, want 500ms", cfg.Execution.TickInterval)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing encryption key",
			env:     map[string]string{"ENCRYPTION_KEY": ""},
			wantErr: "ENCRYPTION_KEY is required",
		},
		{
			name:    "short encryption key",
			env:     map[string]string{"ENCRYPTION_KEY": "too-short"},
			wantErr: "exactly 32 bytes",
		},
		{
			name:    "bad book mode",
			env:     map[string]string{"BOOK_MODE": "hybrid"},
			wantErr: "BOOK_MODE",
		},
		{
			name:    "multiplier below one",
			env:     map[string]string{"BUY_SAFETY_MULTIPLIER": "0.9"},
			wantErr: "BUY_SAFETY_MULTIPLIER",
		},
		{
			name:    "port out of range",
			env:     map[string]string{"SERVER_PORT": "70000"},
			wantErr: "SERVER_PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSNWithoutPassword(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "bot", Password: "secret", Name: "cyclebot", SSLMode: "disable"}
	if strings.Contains(d.DSNWithoutPassword(), "secret") {
		t.Error("DSNWithoutPassword leaks the password")
	}
	if !strings.Contains(d.DSN(), "password=secret") {
		t.Error("DSN must carry the password")
	}
}
