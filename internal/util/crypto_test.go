package util

import (
	"strings"
	"testing"
)

func TestEncryptValueRoundTrip(t *testing.T) {
	key := Derive32ByteKey("test-encrypt-key-for-settings")
	enc, err := EncryptValue(key, "fastpanel-admin-secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !IsEncryptedValue(enc) {
		t.Fatalf("expected marker prefix on %q", enc)
	}
	if strings.Contains(enc, "fastpanel-admin-secret") {
		t.Fatalf("ciphertext leaks plaintext")
	}
	plain, err := DecryptValue(key, enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "fastpanel-admin-secret" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestDecryptValueRejectsPlaintext(t *testing.T) {
	key := Derive32ByteKey("test-encrypt-key-for-settings")
	if _, err := DecryptValue(key, "just-a-password"); err == nil {
		t.Fatalf("expected error for unmarked value")
	}
}

func TestDecryptValueRejectsWrongKey(t *testing.T) {
	enc, err := EncryptValue(Derive32ByteKey("key-one"), "secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptValue(Derive32ByteKey("key-two"), enc); err == nil {
		t.Fatalf("expected error for wrong key")
	}
}

func TestIsEncryptedValue(t *testing.T) {
	if IsEncryptedValue("plain") {
		t.Fatalf("plain value reported as encrypted")
	}
	if !IsEncryptedValue("enc1:abc") {
		t.Fatalf("marked value not recognized")
	}
}
