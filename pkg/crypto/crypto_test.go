package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kr, err := NewKeyring(map[int]string{1: testKey(t)})
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	plaintext := "binance-api-secret-abc123"
	ct, err := kr.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !strings.HasPrefix(ct, "ENC[v1]:") {
		t.Errorf("ciphertext = %q, want ENC[v1]: prefix", ct)
	}
	if strings.Contains(ct, plaintext) {
		t.Errorf("ciphertext contains plaintext")
	}

	got, err := kr.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Errorf("roundtrip = %q, want %q", got, plaintext)
	}
}

func TestEncryptionIsNonDeterministic(t *testing.T) {
	kr, _ := NewKeyring(map[int]string{1: testKey(t)})

	a, _ := kr.Encrypt("same input")
	b, _ := kr.Encrypt("same input")
	if a == b {
		t.Errorf("two encryptions produced identical ciphertexts")
	}
}

func TestKeyRotation(t *testing.T) {
	k1, k2 := testKey(t), testKey(t)
	old, err := NewKeyring(map[int]string{1: k1})
	if err != nil {
		t.Fatalf("NewKeyring v1: %v", err)
	}
	ct1, _ := old.Encrypt("secret")

	// A rotated keyring still decrypts v1 material but seals with v2.
	rotated, err := NewKeyring(map[int]string{1: k1, 2: k2})
	if err != nil {
		t.Fatalf("NewKeyring rotated: %v", err)
	}
	if rotated.CurrentVersion() != 2 {
		t.Fatalf("current version = %d, want 2", rotated.CurrentVersion())
	}

	if got, err := rotated.Decrypt(ct1); err != nil || got != "secret" {
		t.Fatalf("decrypt v1 with rotated keyring = %q, %v", got, err)
	}

	ct2, err := rotated.ReEncrypt(ct1)
	if err != nil {
		t.Fatalf("ReEncrypt: %v", err)
	}
	if !strings.HasPrefix(ct2, "ENC[v2]:") {
		t.Errorf("re-encrypted = %q, want v2 prefix", ct2)
	}

	// The v1-only keyring cannot open v2 material.
	if _, err := old.Decrypt(ct2); err == nil {
		t.Errorf("old keyring opened v2 ciphertext")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	kr, _ := NewKeyring(map[int]string{1: testKey(t)})
	ct, _ := kr.Encrypt("secret")

	// Flip one byte of the payload.
	payload := ct[len("ENC[v1]:"):]
	raw, _ := base64.StdEncoding.DecodeString(payload)
	raw[len(raw)-1] ^= 0xff
	tampered := "ENC[v1]:" + base64.StdEncoding.EncodeToString(raw)

	if _, err := kr.Decrypt(tampered); err == nil {
		t.Fatalf("tampered ciphertext accepted")
	}
}

func TestDecryptRejectsBadFormats(t *testing.T) {
	kr, _ := NewKeyring(map[int]string{1: testKey(t)})

	bad := []string{
		"",
		"plaintext",
		"ENC[v1]",
		"ENC[v1]:!!!not-base64!!!",
		"ENC[v0]:AAAA",
		"ENC[v9]:AAAA", // unknown version
	}
	for _, ct := range bad {
		if _, err := kr.Decrypt(ct); err == nil {
			t.Errorf("Decrypt(%q) accepted", ct)
		}
	}
}

func TestNewKeyringValidation(t *testing.T) {
	if _, err := NewKeyring(nil); err == nil {
		t.Errorf("empty keyring accepted")
	}
	if _, err := NewKeyring(map[int]string{1: "not-base64"}); err == nil {
		t.Errorf("non-base64 key accepted")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if _, err := NewKeyring(map[int]string{1: short}); err == nil {
		t.Errorf("short key accepted")
	}
}
