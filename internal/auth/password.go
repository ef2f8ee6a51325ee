package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPassword is returned when a plaintext password fails verification
// against a stored hash, or fails the minimum-length policy on registration.
var ErrInvalidPassword = errors.New("invalid password")

const minPasswordLength = 8

// HashPassword returns the bcrypt hash of password for storage in
// models.User.PasswordHash. Returns ErrInvalidPassword if password is
// shorter than the minimum length.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash, previously produced
// by HashPassword. Returns ErrInvalidPassword on mismatch.
func VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
