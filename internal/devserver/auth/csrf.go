package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/narrate/internal/common"
)

const csrfSecretSize = 16

// NewCSRFPair returns a random secret, sent to the client as a cookie, and
// the token derived from it, sent in the response body.
func NewCSRFPair(key []byte) (secret, token string, err error) {
	secret, err = common.MakeRandHexString(csrfSecretSize)
	if err != nil {
		return "", "", err
	}
	return secret, CSRFToken(key, secret), nil
}

// CSRFToken derives the token for secret.
func CSRFToken(key []byte, secret string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidCSRF reports whether token was derived from secret.
func ValidCSRF(key []byte, secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	return hmac.Equal([]byte(CSRFToken(key, secret)), []byte(token))
}
