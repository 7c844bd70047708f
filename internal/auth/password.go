package auth

import "golang.org/x/crypto/bcrypt"

// hashCost is the fixed bcrypt work factor; ~tens of milliseconds per hash.
const hashCost = 10

// HashPassword derives a one-way salted hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	return string(bytes), err
}

// ComparePasswords checks a candidate password against a stored hash.
// Compare, never decrypt; nil means match.
func ComparePasswords(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
