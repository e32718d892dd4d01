package handlers

import (
	"net/http"

	"cyclebot/internal/bot"
)

// StatusProvider отдаёт снимок состояния цикла стратегии
type StatusProvider interface {
	Snapshot() bot.StrategySnapshot
}

// StatusHandler отвечает за состояние стратегии
//
// Endpoints:
// - GET /api/v1/status - текущее состояние машины исполнения
type StatusHandler struct {
	status StatusProvider
}

// NewStatusHandler создает новый StatusHandler
func NewStatusHandler(status StatusProvider) *StatusHandler {
	return &StatusHandler{status: status}
}

// GetStatus возвращает снимок состояния стратегии
//
// GET /api/v1/status
//
// HTTP коды:
// - 200 OK: снимок состояния
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.status.Snapshot())
}
