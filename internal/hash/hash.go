package hash

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a bcrypt hash from the supplied plaintext.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches the stored hash. A mismatch
// is a normal outcome, not an error; the comparison is constant-time.
func CheckPassword(storedHash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}
