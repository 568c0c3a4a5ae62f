package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

const refreshTokenRawSize = 32

// NewRefreshToken returns an opaque 256-bit refresh-token value encoded
// as unpadded base64url.
func NewRefreshToken() (string, error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 digest of a token value. Stores key
// records by this digest so raw values never appear in Redis keys.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashCode returns the SHA-256 digest of an OTP code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// NewOTP generates a numeric one-time code of the given length from a
// cryptographically secure source. Each digit is drawn independently so
// codes are uniform over the full space.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
