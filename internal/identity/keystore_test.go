package identity_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldref/syncore/internal/identity"
)

func TestSaveAndLoadKeyPair(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, identity.SaveKeyPair(path, kp, "correct horse battery staple"))

	loaded, err := identity.LoadKeyPair(path, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, kp.PeerID(), loaded.PeerID())
}

func TestLoadKeyPair_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keystore.json")

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, identity.SaveKeyPair(path, kp, "right passphrase"))

	_, err = identity.LoadKeyPair(path, "wrong passphrase")
	assert.Error(t, err)
}
