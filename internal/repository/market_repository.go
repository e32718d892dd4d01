package repository

import (
	"database/sql"
	"errors"
	"time"

	"cyclebot/pkg/crypto"
)

// Ошибки репозитория рынков
var (
	ErrMarketNotFound = errors.New("market not found")
)

// MarketCredentials - расшифрованные API-ключи рынка
type MarketCredentials struct {
	Market    string
	APIKey    string
	APISecret string
}

// MarketRepository - таблица markets с API-ключами рынков.
// Ключи хранятся зашифрованными (AES-256-GCM), наружу отдаются открытыми.
type MarketRepository struct {
	db            *sql.DB
	encryptionKey []byte
}

// NewMarketRepository создает новый экземпляр репозитория
func NewMarketRepository(db *sql.DB, encryptionKey []byte) (*MarketRepository, error) {
	if err := crypto.ValidateKey(encryptionKey); err != nil {
		return nil, err
	}
	return &MarketRepository{db: db, encryptionKey: encryptionKey}, nil
}

// Upsert сохраняет ключи рынка, шифруя их перед записью
func (r *MarketRepository) Upsert(creds *MarketCredentials) error {
	encKey, err := crypto.Encrypt(creds.APIKey, r.encryptionKey)
	if err != nil {
		return err
	}
	encSecret, err := crypto.Encrypt(creds.APISecret, r.encryptionKey)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO markets (name, api_key_enc, api_secret_enc, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET api_key_enc = $2, api_secret_enc = $3, updated_at = $4`

	_, err = r.db.Exec(query, creds.Market, encKey, encSecret, time.Now())
	return err
}

// GetCredentials возвращает расшифрованные ключи рынка
func (r *MarketRepository) GetCredentials(market string) (*MarketCredentials, error) {
	query := `SELECT api_key_enc, api_secret_enc FROM markets WHERE name = $1`

	var encKey, encSecret string
	err := r.db.QueryRow(query, market).Scan(&encKey, &encSecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, err
	}

	apiKey, err := crypto.Decrypt(encKey, r.encryptionKey)
	if err != nil {
		return nil, err
	}
	apiSecret, err := crypto.Decrypt(encSecret, r.encryptionKey)
	if err != nil {
		return nil, err
	}

	return &MarketCredentials{Market: market, APIKey: apiKey, APISecret: apiSecret}, nil
}

// List возвращает имена рынков с сохранёнными ключами
func (r *MarketRepository) List() ([]string, error) {
	rows, err := r.db.Query(`SELECT name FROM markets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Delete удаляет ключи рынка
func (r *MarketRepository) Delete(market string) error {
	result, err := r.db.Exec(`DELETE FROM markets WHERE name = $1`, market)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrMarketNotFound
	}

	return nil
}
