package repository

import (
	"database/sql"
	"errors"
	"time"

	"cyclebot/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - журнал ордеров в таблице orders.
// Запись создаётся при размещении ноги и обновляется по событиям биржи.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `client_order_id, market, trading_pair, is_buy, base_asset, quote_asset, price, quantity, filled_quantity, status, created_at`

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		query,
		order.ClientOrderID,
		order.Market,
		order.TradingPair,
		order.IsBuy,
		order.BaseAsset,
		order.QuoteAsset,
		order.Price,
		order.Quantity,
		order.FilledQuantity,
		order.Status,
		order.CreatedAt,
	)
	return err
}

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.OrderRecord, error) {
	order := &models.OrderRecord{}
	err := row.Scan(
		&order.ClientOrderID,
		&order.Market,
		&order.TradingPair,
		&order.IsBuy,
		&order.BaseAsset,
		&order.QuoteAsset,
		&order.Price,
		&order.Quantity,
		&order.FilledQuantity,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.OrderRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetByClientOrderID возвращает ордер по клиентскому идентификатору
func (r *OrderRepository) GetByClientOrderID(id string) (*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE client_order_id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryOrders(query, limit)
}

// GetByStatus возвращает ордера с определенным статусом
func (r *OrderRepository) GetByStatus(status string) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC`

	return r.queryOrders(query, status)
}

// GetByMarket возвращает ордера конкретного рынка
func (r *OrderRepository) GetByMarket(market string, limit int) ([]*models.OrderRecord, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE market = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryOrders(query, market, limit)
}

// UpdateFill обновляет статус и исполненный объем ордера
func (r *OrderRepository) UpdateFill(clientOrderID, status string, filledQuantity float64) error {
	query := `
		UPDATE orders
		SET status = $1, filled_quantity = $2
		WHERE client_order_id = $3`

	result, err := r.db.Exec(query, status, filledQuantity, clientOrderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// DeleteOlderThan удаляет ордера старше указанной даты
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM orders WHERE created_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count возвращает общее количество ордеров
func (r *OrderRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM orders`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
