package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoginCode(t *testing.T) {
	code := NewLoginCode()
	assert.Len(t, code, 9, "login code is the prefix plus eight characters")
	assert.True(t, strings.HasPrefix(code, "u"))
	for _, r := range code[1:] {
		assert.Contains(t, unambiguousAlphabet, string(r), "code characters come from the unambiguous alphabet")
	}
}

func TestNewGroupCode(t *testing.T) {
	code := NewGroupCode()
	assert.Len(t, code, 7, "group code is the prefix plus six characters")
	assert.True(t, strings.HasPrefix(code, "g"))
}

func TestCodesAvoidAmbiguousCharacters(t *testing.T) {
	for _, forbidden := range []string{"0", "O", "o", "1", "l", "I"} {
		assert.NotContains(t, unambiguousAlphabet, forbidden, "alphabet must exclude %q", forbidden)
	}
}

func TestCodesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := NewLoginCode()
		assert.False(t, seen[code], "generated a duplicate code %q", code)
		seen[code] = true
	}
}

func TestSessionTokensDiffer(t *testing.T) {
	assert.NotEqual(t, NewSessionToken(), NewSessionToken())
	assert.NotEqual(t, NewCsrfToken(), NewCsrfToken())
}
