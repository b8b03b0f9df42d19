package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const scheme = "sha256="

// Sign computes the signature header value over the exact request body.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return scheme + hex.EncodeToString(mac.Sum(nil))
}

// Verify is what a receiver runs; the engine itself only signs.
func Verify(secret string, payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, scheme) {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func HeaderName(brand string) string {
	return "X-" + brand + "-Signature"
}
