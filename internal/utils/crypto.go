// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomFrom(charset string, length int) (string, error) {
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GenerateReference builds a provider-safe reference such as DGS-1697040000123-K7Q2M9XA.
// The millisecond timestamp keeps references sortable; the random suffix keeps them unique.
func GenerateReference(prefix string) (string, error) {
	suffix, err := randomFrom(referenceCharset, 8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", strings.ToUpper(prefix), time.Now().UnixMilli(), suffix), nil
}
