package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("SecretPass123!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "SecretPass123!") {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword(hash, "WrongPass") {
		t.Fatalf("wrong password verified")
	}
}

func TestVerifyPasswordRejectsGarbage(t *testing.T) {
	if VerifyPassword("not-a-hash", "pw") {
		t.Fatalf("garbage hash verified")
	}
	if VerifyPassword("", "pw") {
		t.Fatalf("empty hash verified")
	}
}

func TestOpaqueTokenHashStable(t *testing.T) {
	raw, hash, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if HashToken(raw) != hash {
		t.Fatalf("hash mismatch for issued token")
	}
}
