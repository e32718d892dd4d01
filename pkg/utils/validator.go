package utils

import (
	"fmt"
	"math"
	"strings"
)

// validator.go - валидация входных данных
//
// Назначение:
// Проверка корректности торговых параметров до того, как они попадут
// в ядро стратегии или на биржу.
//
// Функции:
// - ValidateTradingPair: формат пары (BTC-USDT)
// - ValidateMarketName: имя рынка/коннектора
// - ValidatePrice: цена (> 0, конечная)
// - ValidateAmount: объём (> 0, конечный)
// - ValidateAPIKey: базовая проверка API ключа
//
// Возвращают error с описанием проблемы или nil

// ValidateTradingPair проверяет формат торговой пары BASE-QUOTE.
//
// Требования:
//   - ровно один дефис-разделитель
//   - base и quote непустые, только A-Z и 0-9
//   - base != quote
func ValidateTradingPair(pair string) error {
	idx := strings.IndexByte(pair, '-')
	if idx < 0 || strings.IndexByte(pair[idx+1:], '-') >= 0 {
		return fmt.Errorf("trading pair %q must have form BASE-QUOTE", pair)
	}

	base, quote := pair[:idx], pair[idx+1:]
	if base == "" || quote == "" {
		return fmt.Errorf("trading pair %q has empty base or quote", pair)
	}
	if base == quote {
		return fmt.Errorf("trading pair %q has identical base and quote", pair)
	}

	for _, part := range []string{base, quote} {
		for _, r := range part {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return fmt.Errorf("trading pair %q contains invalid character %q", pair, r)
			}
		}
	}

	return nil
}

// ValidateMarketName проверяет имя рынка (коннектора).
//
// Допустимы строчные буквы, цифры, '_' и '-', длина 1..32
func ValidateMarketName(name string) error {
	if name == "" {
		return fmt.Errorf("market name cannot be empty")
	}
	if len(name) > 32 {
		return fmt.Errorf("market name %q is too long (max 32)", name)
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if !ok {
			return fmt.Errorf("market name %q contains invalid character %q", name, r)
		}
	}
	return nil
}

// ValidatePrice проверяет, что цена положительная и конечная
func ValidatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("price is not a finite number")
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}

// ValidateAmount проверяет, что объём положительный и конечный
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("amount is not a finite number")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", amount)
	}
	return nil
}

// ValidateAPIKey делает базовую проверку формата API ключа.
//
// Ключ не обязан иметь конкретный формат (он разный у разных рынков),
// но пробелы и управляющие символы означают ошибку копирования
func ValidateAPIKey(key string) error {
	if len(key) < 16 {
		return fmt.Errorf("api key is too short (min 16 characters)")
	}
	for _, r := range key {
		if r <= ' ' || r > '~' {
			return fmt.Errorf("api key contains whitespace or non-printable characters")
		}
	}
	return nil
}
