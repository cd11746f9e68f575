package auth

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/lamassuiot/providore/pkg/utils"
)

// Sign returns base64(HMAC-SHA256(secret, message)).
func Sign(message []byte, secret string) string {
	return utils.EncodeB64(digest(message, secret))
}

// Verify reports whether signature is the base64 HMAC of message under secret.
// The digests are compared in constant time.
func Verify(message []byte, secret string, signature string) bool {
	supplied, err := utils.DecodeB64(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(digest(message, secret), supplied)
}

func digest(message []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return mac.Sum(nil)
}
