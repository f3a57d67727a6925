package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestTokenCipher(t *testing.T) {
	c, err := NewTokenCipher(testTokenKey)
	require.NoError(t, err)

	t.Run("seal and open", func(t *testing.T) {
		sealed, err := c.Seal("ya29.access-token")
		require.NoError(t, err)
		assert.NotContains(t, sealed, "ya29")

		plain, err := c.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "ya29.access-token", plain)
	})

	t.Run("fresh nonce per seal", func(t *testing.T) {
		a, _ := c.Seal("same")
		b, _ := c.Seal("same")
		assert.NotEqual(t, a, b)
	})

	t.Run("short key", func(t *testing.T) {
		_, err := NewTokenCipher("abcd")
		assert.Error(t, err)
	})

	t.Run("not hex", func(t *testing.T) {
		_, err := c.Open("zz-not-hex")
		assert.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		sealed, _ := c.Seal("refresh")
		tail := "00"
		if strings.HasSuffix(sealed, tail) {
			tail = "ff"
		}
		_, err := c.Open(sealed[:len(sealed)-2] + tail)
		assert.Error(t, err)
	})

	t.Run("another key cannot open", func(t *testing.T) {
		other, err := NewTokenCipher("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
		require.NoError(t, err)
		sealed, _ := c.Seal("refresh")
		_, err = other.Open(sealed)
		assert.Error(t, err)
	})
}
