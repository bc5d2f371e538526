/*
Package password hashes and verifies user passwords with bcrypt.

Stored credentials are never cleartext; comparison is constant-time via
bcrypt.CompareHashAndPassword.
*/
package password

import "golang.org/x/crypto/bcrypt"

// Hash derives a bcrypt hash from a cleartext password.
func Hash(cleartext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(cleartext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether cleartext matches the stored bcrypt hash.
func Compare(hash, cleartext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(cleartext)) == nil
}
