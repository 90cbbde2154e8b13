package token

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// unambiguousAlphabet excludes characters users confuse when typing codes
// by hand: 0/O/o and 1/l/I.
const unambiguousAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

// NewSessionToken returns a fresh bearer token for a session row.
func NewSessionToken() string {
	return uuid.NewString()
}

// NewCsrfToken returns a fresh per-session CSRF secret.
func NewCsrfToken() string {
	return uuid.NewString()
}

// NewLoginCode returns a code for group-provisioned student accounts.
func NewLoginCode() string {
	return unambiguousCode(8, "u")
}

// NewGroupCode returns a join token for a group.
func NewGroupCode() string {
	return unambiguousCode(6, "g")
}

// NewSalt returns per-account salt appended to passwords before hashing.
func NewSalt() string {
	return unambiguousCode(10, "")
}

func unambiguousCode(length int, prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	max := big.NewInt(int64(len(unambiguousAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform's entropy source is
			// broken; there is no sensible fallback for credential material.
			panic(err)
		}
		b.WriteByte(unambiguousAlphabet[n.Int64()])
	}
	return b.String()
}
