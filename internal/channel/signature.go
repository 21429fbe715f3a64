package channel

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
)

// ComputeSignature returns the provider signature for a webhook delivery:
// "sha1=" + base64(HMAC-SHA1(secret, url + rawBody)).
func ComputeSignature(secret, url string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(url))
	mac.Write(body)
	return "sha1=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the claimed signature header against the expected
// value in constant time. An absent header never verifies.
func VerifySignature(secret, url string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := ComputeSignature(secret, url, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
