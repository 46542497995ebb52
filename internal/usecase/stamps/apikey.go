package stamps

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const apiKeyBytes = 32

// HashAPIKey возвращает SHA-256 ключа в верхнем регистре hex.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// GenerateAPIKey создаёт новый случайный ключ ридера.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
