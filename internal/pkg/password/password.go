package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned for passwords bcrypt would silently truncate.
var ErrTooLong = errors.New("password exceeds 72 bytes")

var cost = 12

// UseMinCost lowers the bcrypt cost. Tests only.
func UseMinCost() {
	cost = bcrypt.MinCost
}

// Hash hashes password using bcrypt
func Hash(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// Verify compares password with hash
func Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
