package auth

import (
	"testing"
)

func TestGenerate(t *testing.T) {
	plain := "correcthorse"

	hash, err := Generate(plain)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	if hash == "" {
		t.Error("Expected non-empty hash")
	}

	if hash == plain {
		t.Error("Hash should not equal plain text password")
	}
}

func TestVerify(t *testing.T) {
	plain := "correcthorse"

	hash, err := Generate(plain)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	if !Verify(hash, plain) {
		t.Error("Verify() should succeed for the correct password")
	}

	if Verify(hash, "batterystaple") {
		t.Error("Verify() should fail for a wrong password")
	}
}

func TestGenerate_Salted(t *testing.T) {
	plain := "correcthorse"

	hash1, _ := Generate(plain)
	hash2, _ := Generate(plain)

	// bcrypt salts, so two hashes of the same password differ
	if hash1 == hash2 {
		t.Error("Expected different hashes for the same password")
	}

	if !Verify(hash1, plain) || !Verify(hash2, plain) {
		t.Error("Both hashes should verify against the original password")
	}
}
