package vault

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New(testKey(t))
	require.NoError(t, err)

	framed, err := v.Encrypt("super-secret-hmac-key")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(framed, separator))

	plain, err := v.Decrypt(framed)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-hmac-key", plain)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	v, err := New(testKey(t))
	require.NoError(t, err)

	framed, err := v.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(framed, separator)
	parts[2] = "ff" + parts[2][2:]
	tampered := strings.Join(parts, separator)

	_, err = v.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptRejectsMalformedFraming(t *testing.T) {
	v, err := New(testKey(t))
	require.NoError(t, err)

	_, err = v.Decrypt("not-enough-segments")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = v.Decrypt("a:b:c:d")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	_, err := New([]byte("too-short"))
	assert.Error(t, err)
}

func TestNewFromHex(t *testing.T) {
	v, err := NewFromHex("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	framed, err := v.Encrypt("x")
	require.NoError(t, err)
	plain, err := v.Decrypt(framed)
	require.NoError(t, err)
	assert.Equal(t, "x", plain)
}
