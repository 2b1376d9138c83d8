package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	cryptoutil "github.com/fieldref/syncore/internal/crypto"
)

// keystoreFile is the on-disk representation of a wrapped keypair: D
// is the encrypted scalar private key, Salt is the Argon2id salt used
// to derive the wrapping key from the user's passphrase.
type keystoreFile struct {
	EncryptedD string `json:"encryptedD"`
	Salt       string `json:"salt"`
}

// SaveKeyPair wraps k's private scalar under a passphrase-derived
// AES-256-GCM key and writes it to path.
func SaveKeyPair(path string, k *KeyPair, passphrase string) error {
	salt, err := cryptoutil.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := cryptoutil.DeriveKeystoreKey(passphrase, salt)
	if err != nil {
		return err
	}

	d := k.Private.D.Bytes()
	encryptedD, err := cryptoutil.EncryptToBase64(d, key)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}

	file := keystoreFile{
		EncryptedD: encryptedD,
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}

// LoadKeyPair reads and unwraps a keystore file written by
// SaveKeyPair, reconstructing the full ECDSA private key (including
// the public point, derived from the scalar).
func LoadKeyPair(path, passphrase string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}

	key, err := cryptoutil.DeriveKeystoreKeyFromBase64Salt(passphrase, file.Salt)
	if err != nil {
		return nil, err
	}
	dBytes, err := cryptoutil.DecryptFromBase64(file.EncryptedD, key)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore: wrong passphrase or corrupted file: %w", err)
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(dBytes)
	x, y := curve.ScalarBaseMult(d.Bytes())

	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}
	return &KeyPair{Private: priv}, nil
}
