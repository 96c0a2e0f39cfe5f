package polar

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const signatureVersion = "v1"

// secretPrefixes are stripped from the shared secret before decoding.
var secretPrefixes = []string{"whsec_", "polar_whs_"}

// VerifySignature authenticates a raw webhook body against the delivery
// headers and the shared secret. The signed content is
// "{webhookID}.{timestamp}.{body}"; the signature header carries one or more
// space-separated "version,digest" candidates and only v1 candidates are
// compared. Verification fails closed: any missing header or decode error
// returns false, and every digest comparison is constant-time.
func VerifySignature(body []byte, webhookID, timestamp, signature, secret string) bool {
	if webhookID == "" || timestamp == "" || signature == "" || secret == "" {
		return false
	}

	raw := strings.TrimSpace(secret)
	for _, prefix := range secretPrefixes {
		raw = strings.TrimPrefix(raw, prefix)
	}
	if raw == "" {
		return false
	}

	signed := make([]byte, 0, len(webhookID)+len(timestamp)+len(body)+2)
	signed = append(signed, webhookID...)
	signed = append(signed, '.')
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	signed = append(signed, body...)

	for _, key := range secretCandidates(raw) {
		mac := hmac.New(sha256.New, key)
		mac.Write(signed)
		digest := mac.Sum(nil)

		encodedB64 := base64.StdEncoding.EncodeToString(digest)
		encodedHex := hex.EncodeToString(digest)

		for _, candidate := range strings.Fields(signature) {
			version, value, ok := strings.Cut(candidate, ",")
			if !ok || version != signatureVersion || value == "" {
				continue
			}
			if subtle.ConstantTimeCompare([]byte(value), []byte(encodedB64)) == 1 {
				return true
			}
			if subtle.ConstantTimeCompare([]byte(value), []byte(encodedHex)) == 1 {
				return true
			}
		}
	}

	return false
}

// secretCandidates returns the ordered list of secret decodings to try.
// The secret's encoding is ambiguous across providers and environments
// (base64 with or without padding, or raw bytes), so each decoding is
// attempted in turn and the first matching one wins. The comparison itself
// stays constant-time per attempt.
func secretCandidates(raw string) [][]byte {
	candidates := make([][]byte, 0, 3)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		candidates = append(candidates, decoded)
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		candidates = append(candidates, decoded)
	}
	return append(candidates, []byte(raw))
}
