// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateSecureToken creates a cryptographically secure random token,
// URL-safe, for shared-link addressing.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateTransactionID returns the external-facing unique token for a
// settlement record.
func GenerateTransactionID() (string, error) {
	token, err := GenerateSecureToken(24)
	if err != nil {
		return "", err
	}
	return "txn_" + token, nil
}

// GenerateReceiptNumber returns a human-legible receipt number derived from
// the current timestamp plus a random suffix.
func GenerateReceiptNumber() (string, error) {
	suffix, err := randomFromCharset(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RCP-%s-%s", time.Now().UTC().Format("20060102"), suffix), nil
}

// GenerateAffiliateCode returns a short shareable code, upper-case with
// ambiguous characters removed.
func GenerateAffiliateCode() (string, error) {
	return randomFromCharset(8)
}

func randomFromCharset(length int) (string, error) {
	var sb strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeCharset[n.Int64()])
	}
	return sb.String(), nil
}
