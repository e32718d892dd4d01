package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cyclebot/internal/book"
)

// BookViewer отдаёт срезы книги заявок одного рынка
type BookViewer interface {
	Pairs() []string
	BookTop(tradingPair string) (bid, ask book.PriceLevel, ok bool)
	BookLevels(tradingPair string, limit int) (bids, asks []book.PriceLevel, ok bool)
}

// BookHandler отвечает за чтение книг заявок
//
// Endpoints:
// - GET /api/v1/books - список рынков и пар
// - GET /api/v1/books/{market}/{pair} - верхние уровни книги
type BookHandler struct {
	markets map[string]BookViewer
}

// NewBookHandler создает новый BookHandler
func NewBookHandler(markets map[string]BookViewer) *BookHandler {
	return &BookHandler{markets: markets}
}

// BookListResponse - список пар по рынкам
type BookListResponse struct {
	Markets map[string][]string `json:"markets"`
}

// GetBooks возвращает список рынков и их торговых пар
//
// GET /api/v1/books
func (h *BookHandler) GetBooks(w http.ResponseWriter, r *http.Request) {
	resp := BookListResponse{Markets: make(map[string][]string, len(h.markets))}
	for name, viewer := range h.markets {
		resp.Markets[name] = viewer.Pairs()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// BookResponse - верхние уровни книги одной пары
type BookResponse struct {
	Market string            `json:"market"`
	Pair   string            `json:"pair"`
	Bids   []book.PriceLevel `json:"bids"`
	Asks   []book.PriceLevel `json:"asks"`
}

// GetBook возвращает верхние уровни книги пары
//
// GET /api/v1/books/{market}/{pair}
//
// Query параметры:
// - depth (int): число уровней на сторону (по умолчанию 20, максимум 200)
//
// HTTP коды:
// - 200 OK: уровни книги
// - 404 Not Found: неизвестный рынок или пара
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	market := vars["market"]
	pair := vars["pair"]

	viewer, ok := h.markets[market]
	if !ok {
		respondWithError(w, http.StatusNotFound, "unknown market: "+market)
		return
	}

	depth := 20
	if v := r.URL.Query().Get("depth"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			depth = parsed
		}
	}
	if depth > 200 {
		depth = 200
	}

	bids, asks, ok := viewer.BookLevels(pair, depth)
	if !ok {
		respondWithError(w, http.StatusNotFound, "unknown trading pair: "+pair)
		return
	}

	respondWithJSON(w, http.StatusOK, BookResponse{
		Market: market,
		Pair:   pair,
		Bids:   bids,
		Asks:   asks,
	})
}
