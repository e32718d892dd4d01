package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cyclebot/internal/models"
)

// ============================================================
// OrderHandler Tests
// ============================================================

func sampleOrder(id string) *models.OrderRecord {
	return &models.OrderRecord{
		ClientOrderID: id,
		Market:        "paper",
		TradingPair:   "BTC-USDT",
		IsBuy:         true,
		Price:         100,
		Quantity:      1,
		Status:        models.OrderStatusOpen,
	}
}

func TestGetActiveOrders(t *testing.T) {
	active := &fakeActiveOrders{orders: []*models.OrderRecord{sampleOrder("o1"), sampleOrder("o2")}}
	h := NewOrderHandler(active, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()

	h.GetActiveOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp OrdersResponse
	if err := apiJSON.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestGetOrderHistory(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		store      *fakeOrderStore
		wantStatus int
		wantLimit  int
		wantFilter string
	}{
		{
			name:       "recent with default limit",
			url:        "/api/v1/orders/history",
			store:      &fakeOrderStore{recent: []*models.OrderRecord{sampleOrder("o1")}},
			wantStatus: http.StatusOK,
			wantLimit:  100,
		},
		{
			name:       "limit capped at 500",
			url:        "/api/v1/orders/history?limit=10000",
			store:      &fakeOrderStore{},
			wantStatus: http.StatusOK,
			wantLimit:  500,
		},
		{
			name:       "status filter",
			url:        "/api/v1/orders/history?status=FILLED",
			store:      &fakeOrderStore{byStatus: []*models.OrderRecord{sampleOrder("o1")}},
			wantStatus: http.StatusOK,
			wantFilter: "FILLED",
		},
		{
			name:       "store error",
			url:        "/api/v1/orders/history",
			store:      &fakeOrderStore{err: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&fakeActiveOrders{}, tt.store)
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()

			h.GetOrderHistory(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantLimit != 0 && tt.store.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.store.lastLimit, tt.wantLimit)
			}
			if tt.wantFilter != "" && tt.store.lastStatus != tt.wantFilter {
				t.Errorf("status filter = %s, want %s", tt.store.lastStatus, tt.wantFilter)
			}
		})
	}
}

func TestGetOrderHistory_NoStore(t *testing.T) {
	h := NewOrderHandler(&fakeActiveOrders{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/history", nil)
	rec := httptest.NewRecorder()

	h.GetOrderHistory(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
