package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignHMAC returns the base64 HMAC-SHA256 of payload under secret.
func SignHMAC(secret string, payload []byte) string {
	return base64.StdEncoding.EncodeToString(hmacSHA256(secret, payload))
}

// VerifyHMAC accepts the signature in either base64 or hex encoding.
func VerifyHMAC(secret string, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}

	expected := hmacSHA256(secret, payload)

	if got, err := base64.StdEncoding.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	if got, err := hex.DecodeString(signature); err == nil && hmac.Equal(got, expected) {
		return true
	}
	return false
}

func hmacSHA256(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
