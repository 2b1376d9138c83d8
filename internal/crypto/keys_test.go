package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, SaltSize)

	other, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)
}

func TestDeriveKeystoreKey(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	key, err := DeriveKeystoreKey("correct horse battery staple", salt)
	require.NoError(t, err)
	assert.Len(t, key, Argon2KeyLen)

	again, err := DeriveKeystoreKey("correct horse battery staple", salt)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	other, err := DeriveKeystoreKey("different passphrase", salt)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestDeriveKeystoreKey_Errors(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	_, err = DeriveKeystoreKey("", salt)
	assert.Error(t, err)

	_, err = DeriveKeystoreKey("pw", []byte("short"))
	assert.Error(t, err)
}

func TestDeriveKeystoreKeyFromBase64Salt(t *testing.T) {
	saltB64, err := GenerateSaltBase64()
	require.NoError(t, err)

	key, err := DeriveKeystoreKeyFromBase64Salt("pw", saltB64)
	require.NoError(t, err)
	assert.Len(t, key, Argon2KeyLen)
}
