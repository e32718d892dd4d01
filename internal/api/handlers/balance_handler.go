package handlers

import (
	"net/http"

	"cyclebot/internal/exchange"
)

// BalanceHandler отвечает за просмотр балансов рынков
//
// Endpoints:
// - GET /api/v1/balances - балансы всех рынков по отслеживаемым активам
type BalanceHandler struct {
	connectors map[string]exchange.MarketConnector
	assets     []string
}

// NewBalanceHandler создает новый BalanceHandler.
// assets - список активов, балансы которых отдаются в API.
func NewBalanceHandler(connectors map[string]exchange.MarketConnector, assets []string) *BalanceHandler {
	return &BalanceHandler{connectors: connectors, assets: assets}
}

// AssetBalance - баланс одного актива
type AssetBalance struct {
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}

// BalancesResponse - балансы по рынкам и активам
type BalancesResponse struct {
	Markets map[string]map[string]AssetBalance `json:"markets"`
}

// GetBalances возвращает балансы всех рынков
//
// GET /api/v1/balances
//
// HTTP коды:
// - 200 OK: балансы по рынкам
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	resp := BalancesResponse{Markets: make(map[string]map[string]AssetBalance, len(h.connectors))}

	for name, conn := range h.connectors {
		balances := make(map[string]AssetBalance, len(h.assets))
		for _, asset := range h.assets {
			balances[asset] = AssetBalance{
				Total:     conn.GetBalance(asset),
				Available: conn.GetAvailableBalance(asset),
			}
		}
		resp.Markets[name] = balances
	}

	respondWithJSON(w, http.StatusOK, resp)
}
