package hipaa

import (
	"crypto/rand"
	"strings"
	"testing"
)

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewPHIEncryptor(t *testing.T) {
	if _, err := NewPHIEncryptor(generateTestKey(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, n := range []int{0, 16, 64} {
		if _, err := NewPHIEncryptor(make([]byte, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
}

func TestPHIEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewPHIEncryptor(generateTestKey(t))
	if err != nil {
		t.Fatal(err)
	}

	ct, err := enc.Encrypt("123-45-6789")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(ct, "6789") {
		t.Error("ciphertext leaks plaintext")
	}
	ct2, _ := enc.Encrypt("123-45-6789")
	if ct == ct2 {
		t.Error("expected a fresh nonce per encryption")
	}

	pt, err := enc.Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if pt != "123-45-6789" {
		t.Errorf("got %q", pt)
	}
}

func TestPHIEncryptor_Empty(t *testing.T) {
	enc, _ := NewPHIEncryptor(generateTestKey(t))
	ct, err := enc.Encrypt("")
	if err != nil || ct != "" {
		t.Fatalf("expected empty ciphertext, got %q %v", ct, err)
	}
	pt, err := enc.Decrypt("")
	if err != nil || pt != "" {
		t.Fatalf("expected empty plaintext, got %q %v", pt, err)
	}
}

func TestPHIEncryptor_Tampered(t *testing.T) {
	enc, _ := NewPHIEncryptor(generateTestKey(t))
	other, _ := NewPHIEncryptor(generateTestKey(t))

	ct, _ := enc.Encrypt("secret")
	if _, err := other.Decrypt(ct); err == nil {
		t.Error("expected wrong key to fail")
	}
	if _, err := enc.Decrypt("!!not-base64!!"); err == nil {
		t.Error("expected invalid base64 to fail")
	}
	if _, err := enc.Decrypt("YWJj"); err == nil {
		t.Error("expected short ciphertext to fail")
	}
}

func TestMaskID(t *testing.T) {
	tests := map[string]string{
		"123-45-6789": "***-**-6789",
		"AB1234567":   "*****4567",
		"1234":        "****",
		"":            "",
	}
	for in, want := range tests {
		if got := MaskID(in); got != want {
			t.Errorf("MaskID(%q) = %q, want %q", in, got, want)
		}
	}
}
