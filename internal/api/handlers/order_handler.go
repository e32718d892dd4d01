package handlers

import (
	"net/http"
	"strconv"

	"cyclebot/internal/models"
)

// ActiveOrderSource отдаёт отслеживаемые в данный момент ордера
type ActiveOrderSource interface {
	ActiveOrders() []*models.OrderRecord
}

// OrderStore читает журнал ордеров из БД
type OrderStore interface {
	GetRecent(limit int) ([]*models.OrderRecord, error)
	GetByStatus(status string) ([]*models.OrderRecord, error)
}

// OrderHandler отвечает за просмотр ордеров
//
// Endpoints:
// - GET /api/v1/orders - активные ордера трекера
// - GET /api/v1/orders/history - журнал ордеров из БД
type OrderHandler struct {
	active ActiveOrderSource
	store  OrderStore
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(active ActiveOrderSource, store OrderStore) *OrderHandler {
	return &OrderHandler{active: active, store: store}
}

// OrdersResponse представляет ответ списка ордеров
type OrdersResponse struct {
	Orders []*models.OrderRecord `json:"orders"`
	Total  int                   `json:"total"`
}

// GetActiveOrders возвращает отслеживаемые ордера
//
// GET /api/v1/orders
//
// HTTP коды:
// - 200 OK: список ордеров (может быть пустым)
func (h *OrderHandler) GetActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.active.ActiveOrders()
	respondWithJSON(w, http.StatusOK, OrdersResponse{Orders: orders, Total: len(orders)})
}

// GetOrderHistory возвращает журнал ордеров
//
// GET /api/v1/orders/history
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
// - status (string): фильтр по статусу (FILLED, CANCELED, ...)
//
// HTTP коды:
// - 200 OK: список ордеров
// - 500 Internal Server Error: ошибка БД
func (h *OrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondWithError(w, http.StatusServiceUnavailable, "order journal is not configured")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	var orders []*models.OrderRecord
	var err error
	if status := r.URL.Query().Get("status"); status != "" {
		orders, err = h.store.GetByStatus(status)
	} else {
		orders, err = h.store.GetRecent(limit)
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get orders: "+err.Error())
		return
	}

	if orders == nil {
		orders = []*models.OrderRecord{}
	}
	respondWithJSON(w, http.StatusOK, OrdersResponse{Orders: orders, Total: len(orders)})
}
