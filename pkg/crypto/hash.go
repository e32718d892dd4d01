package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match hash")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt для пароля управляющего API.
// Пароль проверяется раз на запрос к защищённым эндпоинтам, так что
// десятки миллисекунд на проверку - приемлемая цена.
const DefaultCost = 12

// MaxPasswordLength - жёсткий лимит bcrypt: байты сверх 72 молча
// отбрасываются алгоритмом, поэтому такие пароли отклоняем явно
const MaxPasswordLength = 72

// checkHashable валидирует пароль перед хешированием
func checkHashable(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword хеширует пароль bcrypt'ом с DefaultCost.
// Соль генерируется внутри bcrypt, два вызова дают разные хеши.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultCost)
}

// HashPasswordWithCost хеширует пароль с заданной стоимостью.
// Значения вне [bcrypt.MinCost, bcrypt.MaxCost] приводятся к границе.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if err := checkHashable(password); err != nil {
		return "", err
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword сверяет пароль с хешем за константное время.
// Несовпадение - ErrPasswordMismatch, битый хеш - ErrInvalidHash.
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// CheckPasswordMatch - bool-обёртка VerifyPassword для middleware
func CheckPasswordMatch(password, hash string) bool {
	return VerifyPassword(password, hash) == nil
}

// GetHashCost извлекает стоимость из существующего хеша
func GetHashCost(hash string) (int, error) {
	if hash == "" {
		return 0, ErrInvalidHash
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, ErrInvalidHash
	}
	return cost, nil
}

// NeedsRehash сообщает, слабее ли хеш желаемой стоимости.
// Нечитаемый хеш тоже требует перехеширования.
func NeedsRehash(hash string, desiredCost int) bool {
	cost, err := GetHashCost(hash)
	if err != nil {
		return true
	}
	return cost < desiredCost
}
