// README: Webhook signature tests (no network).
package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

	if !VerifySignature(body, signBody(body, secret), secret) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature(body, signBody(body, "other-secret"), secret) {
		t.Fatalf("signature from wrong secret accepted")
	}
	if VerifySignature([]byte(`{"tampered":true}`), signBody(body, secret), secret) {
		t.Fatalf("signature over different body accepted")
	}
	if VerifySignature(body, "", secret) {
		t.Fatalf("empty signature accepted")
	}
	if VerifySignature(body, "not-hex", secret) {
		t.Fatalf("malformed signature accepted")
	}
}
