package devsvc

import (
	"crypto/rand"
	"encoding/base64"
)

// NewToken — 48 байт криптослучайности в URL-safe base64 (384 бита).
func NewToken() string {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand на поддерживаемых платформах не возвращает ошибку
		panic("devsvc: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
