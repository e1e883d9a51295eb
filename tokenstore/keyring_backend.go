package tokenstore

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the OS keyring service name.
const DefaultKeyringService = "teamified-portal"

// KeyringBackend stores items in the OS keyring (macOS Keychain, Secret
// Service, Windows Credential Manager).
type KeyringBackend struct {
	service string
}

func NewKeyringBackend(service string) *KeyringBackend {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringBackend{service: service}
}

func (b *KeyringBackend) GetItem(key string) (string, bool, error) {
	v, err := keyring.Get(b.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tokenstore: keyring get %s: %w", key, err)
	}
	return v, true, nil
}

func (b *KeyringBackend) SetItem(key, value string) error {
	if err := keyring.Set(b.service, key, value); err != nil {
		return fmt.Errorf("tokenstore: keyring set %s: %w", key, err)
	}
	return nil
}

func (b *KeyringBackend) RemoveItem(key string) error {
	err := keyring.Delete(b.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("tokenstore: keyring delete %s: %w", key, err)
	}
	return nil
}
