package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cyclebot/internal/models"
)

// ============================================================
// NotificationHandler Tests
// ============================================================

func TestGetNotifications(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		store      *fakeNotificationStore
		wantStatus int
		wantTypes  []string
		wantLimit  int
	}{
		{
			name: "default limit",
			url:  "/api/v1/notifications",
			store: &fakeNotificationStore{
				notifications: []*models.Notification{sampleNotification(1, models.NotificationTypeCycleOpen)},
			},
			wantStatus: http.StatusOK,
			wantLimit:  100,
		},
		{
			name:       "custom limit",
			url:        "/api/v1/notifications?limit=50",
			store:      &fakeNotificationStore{},
			wantStatus: http.StatusOK,
			wantLimit:  50,
		},
		{
			name:       "limit capped at 500",
			url:        "/api/v1/notifications?limit=9999",
			store:      &fakeNotificationStore{},
			wantStatus: http.StatusOK,
			wantLimit:  500,
		},
		{
			name:       "types filter normalized to upper case",
			url:        "/api/v1/notifications?types=leg_fail,%20kill_switch",
			store:      &fakeNotificationStore{},
			wantStatus: http.StatusOK,
			wantTypes:  []string{"LEG_FAIL", "KILL_SWITCH"},
			wantLimit:  100,
		},
		{
			name:       "store error",
			url:        "/api/v1/notifications",
			store:      &fakeNotificationStore{err: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewNotificationHandler(tt.store)
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()

			h.GetNotifications(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			if tt.wantLimit != 0 && tt.store.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", tt.store.lastLimit, tt.wantLimit)
			}
			if len(tt.wantTypes) > 0 {
				if len(tt.store.lastTypes) != len(tt.wantTypes) {
					t.Fatalf("types = %v, want %v", tt.store.lastTypes, tt.wantTypes)
				}
				for i, typ := range tt.wantTypes {
					if tt.store.lastTypes[i] != typ {
						t.Errorf("types[%d] = %s, want %s", i, tt.store.lastTypes[i], typ)
					}
				}
			}

			var resp GetNotificationsResponse
			if err := apiJSON.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON response: %v", err)
			}
			if resp.Total != len(tt.store.notifications) {
				t.Errorf("total = %d, want %d", resp.Total, len(tt.store.notifications))
			}
		})
	}
}

func TestClearNotifications(t *testing.T) {
	store := &fakeNotificationStore{}
	h := NewNotificationHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()

	h.ClearNotifications(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !store.cleared {
		t.Error("DeleteAll was not called")
	}
}

func TestClearNotifications_Error(t *testing.T) {
	store := &fakeNotificationStore{err: errors.New("db down")}
	h := NewNotificationHandler(store)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()

	h.ClearNotifications(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
