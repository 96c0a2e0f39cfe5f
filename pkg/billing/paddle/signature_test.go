package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signBody(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_Valid(t *testing.T) {
	secret := "pdl_ntfset_secret"
	body := []byte(`{"event_type":"transaction.completed"}`)
	ts := "1700000000"

	header := "ts=" + ts + ";h1=" + signBody(secret, ts, body)

	if !VerifySignature(header, body, secret) {
		t.Error("Expected valid signature to verify")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := "pdl_ntfset_secret"
	body := []byte(`{"event_type":"transaction.completed"}`)
	ts := "1700000000"

	header := "ts=" + ts + ";h1=" + signBody(secret, ts, body)

	if VerifySignature(header, []byte(`{"event_type":"other"}`), secret) {
		t.Error("Tampered body must not verify")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"event_type":"transaction.completed"}`)
	ts := "1700000000"

	header := "ts=" + ts + ";h1=" + signBody("secret-a", ts, body)

	if VerifySignature(header, body, "secret-b") {
		t.Error("Wrong secret must not verify")
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	secret := "pdl_ntfset_secret"
	body := []byte(`{}`)

	cases := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no h1", "ts=1700000000"},
		{"no ts", "h1=deadbeef"},
		{"garbage", "not-a-signature"},
	}
	for _, tc := range cases {
		if VerifySignature(tc.header, body, secret) {
			t.Errorf("%s: expected verification to fail closed", tc.name)
		}
	}
}
