package domain

import "strings"

// MaxIdempotencyKeyLength ограничивает длину клиентского ключа идемпотентности.
const MaxIdempotencyKeyLength = 100

// NormalizeIdempotencyKey тримит ключ; пустой ключ означает «без идемпотентности».
func NormalizeIdempotencyKey(key string) string {
	return strings.TrimSpace(key)
}

// IdempotencyScope — пара (user, key), уникальная среди заказов с непустым ключом.
type IdempotencyScope struct {
	UserID string
	Key    string
}

// NewIdempotencyScope возвращает false, если ключ не задан.
func NewIdempotencyScope(userID, key string) (IdempotencyScope, bool) {
	key = NormalizeIdempotencyKey(key)
	if key == "" {
		return IdempotencyScope{}, false
	}
	return IdempotencyScope{UserID: strings.TrimSpace(userID), Key: key}, true
}
