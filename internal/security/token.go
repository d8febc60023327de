package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"
)

// NewRandomString returns n bytes of cryptographic randomness, URL-safe
// base64 encoded.
func NewRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewOpaqueToken mints a 256-bit refresh-token value. The raw value is a
// capability: it travels only in the client's cookie and is stored hashed.
func NewOpaqueToken() (string, error) {
	return NewRandomString(32)
}

// HashRefreshToken derives the storage key for a refresh token. The pepper
// keeps a leaked table from being usable without the process configuration.
func HashRefreshToken(raw, pepper string) string {
	h := sha256.Sum256([]byte(raw + ":" + pepper))
	return hex.EncodeToString(h[:])
}

// TokenPrefix is the only portion of a refresh-token hash that may appear in
// logs.
func TokenPrefix(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
)

// GenerateInitialPassword creates the one-time password handed to a freshly
// created user: at least one uppercase letter, one lowercase letter, and one
// digit, shuffled.
func GenerateInitialPassword(length int) (string, error) {
	if length < 3 {
		length = 12
	}
	all := upperChars + lowerChars + digitChars
	chars := make([]byte, 0, length)

	for _, set := range []string{upperChars, lowerChars, digitChars} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates so the first three positions are not predictable.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
