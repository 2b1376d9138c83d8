package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used to derive the key that wraps a peer's
// locally stored ECDSA private key under a device passphrase.
const (
	Argon2Time    = 1
	Argon2Memory  = 64 * 1024
	Argon2Threads = 4
	Argon2KeyLen  = 32
	SaltSize      = 32
)

// GenerateSalt returns a cryptographically random salt of SaltSize
// bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// GenerateSaltBase64 is GenerateSalt with a base64-encoded result, for
// storing alongside the wrapped key material.
func GenerateSaltBase64() (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// DeriveKeystoreKey derives the AES-256-GCM key used to encrypt a
// peer's on-device private key, from a user-supplied passphrase and a
// per-keystore salt. The passphrase never leaves the device and the
// derived key is never persisted.
func DeriveKeystoreKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen), nil
}

// DeriveKeystoreKeyFromBase64Salt is DeriveKeystoreKey with a
// base64-encoded salt, as read back from the keystore file.
func DeriveKeystoreKeyFromBase64Salt(passphrase, saltBase64 string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return DeriveKeystoreKey(passphrase, salt)
}
