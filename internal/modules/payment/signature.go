// README: Webhook signature verification (HMAC-SHA512, constant-time compare).
package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// VerifySignature checks the x-signature header against
// HMAC-SHA512(rawBody, secret). The comparison is constant time.
func VerifySignature(rawBody []byte, header, secret string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
