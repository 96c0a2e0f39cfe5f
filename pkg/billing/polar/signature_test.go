package polar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

const (
	testWebhookID = "wh_123"
	testTimestamp = "1700000000"
)

// sign computes the v1 candidate for the given secret key bytes.
func sign(t *testing.T, key []byte, webhookID, timestamp string, body []byte) []byte {
	t.Helper()
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(webhookID + "." + timestamp + "."))
	mac.Write(body)
	return mac.Sum(nil)
}

func TestVerifySignature_Valid(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	if !VerifySignature(body, testWebhookID, testTimestamp, header, secret) {
		t.Error("Expected valid signature to verify")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	tampered := []byte(`{"type":"order.refunded"}`)
	if VerifySignature(tampered, testWebhookID, testTimestamp, header, secret) {
		t.Error("Tampered body must not verify")
	}
}

func TestVerifySignature_TamperedHeaders(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	if VerifySignature(body, "wh_other", testTimestamp, header, secret) {
		t.Error("Changed webhook id must not verify")
	}
	if VerifySignature(body, testWebhookID, "1700000001", header, secret) {
		t.Error("Changed timestamp must not verify")
	}
}

func TestVerifySignature_HexDigest(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + hex.EncodeToString(digest)

	if !VerifySignature(body, testWebhookID, testTimestamp, header, secret) {
		t.Error("Hex-encoded digest should verify")
	}
}

func TestVerifySignature_MultipleCandidates(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1,bm90LXRoaXMtb25l v1," + base64.StdEncoding.EncodeToString(digest)

	if !VerifySignature(body, testWebhookID, testTimestamp, header, secret) {
		t.Error("Any matching candidate should verify")
	}
}

func TestVerifySignature_PolarSecretPrefix(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "polar_whs_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	if !VerifySignature(body, testWebhookID, testTimestamp, header, secret) {
		t.Error("polar_whs_ prefixed secret should verify")
	}
}

func TestVerifySignature_RawSecret(t *testing.T) {
	// A secret that is not valid base64 is used byte for byte.
	raw := "not-base64!!"
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, []byte(raw), testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	if !VerifySignature(body, testWebhookID, testTimestamp, header, "whsec_"+raw) {
		t.Error("Raw secret bytes should verify")
	}
}

func TestVerifySignature_UnpaddedSecret(t *testing.T) {
	key := []byte("material-with-odd-length!")
	unpadded := base64.RawStdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	if !VerifySignature(body, testWebhookID, testTimestamp, header, "whsec_"+unpadded) {
		t.Error("Unpadded base64 secret should verify")
	}
}

func TestVerifySignature_MissingParts(t *testing.T) {
	key := []byte("super-secret-key-material")
	secret := "whsec_" + base64.StdEncoding.EncodeToString(key)
	body := []byte(`{"type":"order.paid"}`)

	digest := sign(t, key, testWebhookID, testTimestamp, body)
	header := "v1," + base64.StdEncoding.EncodeToString(digest)

	cases := []struct {
		name                             string
		webhookID, timestamp, sig, secret string
	}{
		{"no webhook id", "", testTimestamp, header, secret},
		{"no timestamp", testWebhookID, "", header, secret},
		{"no signature", testWebhookID, testTimestamp, "", secret},
		{"no secret", testWebhookID, testTimestamp, header, ""},
		{"prefix only secret", testWebhookID, testTimestamp, header, "whsec_"},
		{"wrong version", testWebhookID, testTimestamp, "v2," + base64.StdEncoding.EncodeToString(digest), secret},
		{"malformed candidate", testWebhookID, testTimestamp, "v1", secret},
	}
	for _, tc := range cases {
		if VerifySignature(body, tc.webhookID, tc.timestamp, tc.sig, tc.secret) {
			t.Errorf("%s: expected verification to fail closed", tc.name)
		}
	}
}
