package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fieldref/syncore/internal/client/iocli"
	"github.com/fieldref/syncore/internal/client/replica"
	"github.com/fieldref/syncore/internal/client/storage"
	"github.com/fieldref/syncore/internal/client/storage/boltdb"
	"github.com/fieldref/syncore/internal/client/transport"
	"github.com/fieldref/syncore/internal/identity"
)

// keyPassphraseEnvVar overrides the interactive passphrase prompt,
// mirroring the priority a referee running headless (e.g. from a
// scorekeeping laptop's startup script) would need.
const keyPassphraseEnvVar = "SYNCORE_KEY_PASSPHRASE"

// App wires one referee device's local storage, signed transport, and
// identity together for the whole command tree to share.
type App struct {
	Store     storage.ReplicaStorage
	Key       *identity.KeyPair
	Client    *transport.Client
	Logger    *slog.Logger
	IO        iocli.IO
	ServerURL string
}

// newApp opens the local replica database at dbPath and loads (or, on
// first run, generates and persists) this device's identity keystore
// at keyPath before building a signed transport client against
// serverURL.
func newApp(ctx context.Context, serverURL, dbPath, keyPath string, io iocli.IO) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	key, err := loadOrCreateKey(keyPath, io)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := transport.New(serverURL, key, key.PeerID())
	return &App{Store: store, Key: key, Client: client, Logger: logger, IO: io, ServerURL: serverURL}, nil
}

// Close releases the local database.
func (a *App) Close() error {
	return a.Store.Close()
}

// Replica builds the replica service driving sku's local state.
func (a *App) Replica(sku string) *replica.Service {
	return replica.New(sku, a.Store, a.Client, a.Logger)
}

func loadOrCreateKey(path string, io iocli.IO) (*identity.KeyPair, error) {
	passphrase := os.Getenv(keyPassphraseEnvVar)
	if passphrase == "" {
		p, err := io.ReadPassword("Identity passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		passphrase = p
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		return identity.LoadKeyPair(path, passphrase)
	case errors.Is(statErr, os.ErrNotExist):
		key, err := identity.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate identity: %w", err)
		}
		if err := identity.SaveKeyPair(path, key, passphrase); err != nil {
			return nil, fmt.Errorf("save identity: %w", err)
		}
		io.Printf("generated new identity, peer id: %s\n", key.PeerID())
		return key, nil
	default:
		return nil, fmt.Errorf("stat keystore file: %w", statErr)
	}
}
