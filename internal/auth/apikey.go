// Package auth issues and verifies API keys, dashboard passwords and
// login sessions.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rsclarke/hookcatch/internal/db"
	"github.com/rsclarke/hookcatch/internal/models"
)

const (
	keyScheme    = "hookcatch"
	prefixLength = 12
	secretLength = 43

	prefixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	secretAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrInvalidKey       = errors.New("invalid API key")
)

// GenerateAPIKey returns a new key in the form hookcatch_<prefix>_<secret>.
// Only the prefix and a SHA-256 of the secret are stored.
func GenerateAPIKey() (displayKey string, prefix string, hash []byte, err error) {
	if prefix, err = randomString(prefixLength, prefixAlphabet); err != nil {
		return "", "", nil, err
	}
	secret, err := randomString(secretLength, secretAlphabet)
	if err != nil {
		return "", "", nil, err
	}
	return keyScheme + "_" + prefix + "_" + secret, prefix, HashSecret(secret), nil
}

// randomString draws n characters uniformly from alphabet.
func randomString(n int, alphabet string) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for range n {
		i, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(alphabet[i.Int64()])
	}
	return b.String(), nil
}

// IssueAPIKey generates a key, stores it and returns the display form.
func IssueAPIKey(d *sql.DB, label *string) (string, error) {
	displayKey, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	if _, err := db.CreateAPIKey(d, prefix, hash, label); err != nil {
		return "", fmt.Errorf("store API key: %w", err)
	}
	return displayKey, nil
}

// Authenticate resolves displayKey to its active stored key.
func Authenticate(d *sql.DB, displayKey string) (*models.APIKey, error) {
	prefix, _, err := ParseAPIKey(displayKey)
	if err != nil {
		return nil, err
	}
	stored, err := db.GetAPIKeyByPrefix(d, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup API key: %w", err)
	}
	if stored == nil || stored.RevokedAt != nil {
		return nil, ErrInvalidKey
	}
	if !VerifyAPIKey(displayKey, stored.KeyHash) {
		return nil, ErrInvalidKey
	}
	return stored, nil
}

func HashSecret(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	return h[:]
}

// VerifyAPIKey compares the secret of displayKey against storedHash in
// constant time.
func VerifyAPIKey(displayKey string, storedHash []byte) bool {
	_, secret, err := ParseAPIKey(displayKey)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(HashSecret(secret), storedHash) == 1
}

func ParseAPIKey(displayKey string) (prefix string, secret string, err error) {
	rest, ok := strings.CutPrefix(displayKey, keyScheme+"_")
	if !ok {
		return "", "", ErrInvalidKeyFormat
	}
	prefix, secret, ok = strings.Cut(rest, "_")
	if !ok || len(prefix) != prefixLength || secret == "" {
		return "", "", ErrInvalidKeyFormat
	}
	if strings.Trim(prefix, prefixAlphabet) != "" {
		return "", "", ErrInvalidKeyFormat
	}
	return prefix, secret, nil
}
