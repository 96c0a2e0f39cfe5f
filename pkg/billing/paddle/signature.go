package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// VerifySignature authenticates a raw webhook body against the
// Paddle-Signature header. The header carries semicolon-separated
// "key=value" pairs of which "ts" and "h1" are required; the signed content
// is "{ts}:{body}" and h1 is its hex-encoded HMAC-SHA256 digest under the
// shared secret. Fails closed on any missing part.
func VerifySignature(signature string, body []byte, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	var ts, h1 string
	for _, part := range strings.Split(signature, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "h1":
			h1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || h1 == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(computed), []byte(h1)) == 1
}
