package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Generate produces a one-way credential hash for a plain text password.
// The hash is safe to persist; the plain text never is.
func Generate(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plain matches a hash produced by Generate.
func Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
