package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is one notch above bcrypt.DefaultCost; login stays fast
// enough and registration is not latency sensitive.
const bcryptCost = 11

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
