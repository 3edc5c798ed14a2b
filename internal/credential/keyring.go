// Package credential keeps the push service access token in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const (
	serviceName = "pushrelay"

	// KeyAccessToken names the push service API token.
	KeyAccessToken = "access-token"
)

var ErrNotFound = errors.New("credential not found")

type Config struct {
	// FileDir is used by the encrypted file fallback backend.
	FileDir string
	// FilePassword unlocks the file backend. Empty uses a fixed key.
	FilePassword string
}

// Store reads and writes credentials.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the first available OS keyring.
func Open(cfg Config) (*Store, error) {
	dir := cfg.FileDir
	if dir == "" {
		if base, err := os.UserConfigDir(); err == nil {
			dir = filepath.Join(base, serviceName, "credentials")
		} else {
			dir = "~/.config/pushrelay/credentials"
		}
	}
	pass := cfg.FilePassword
	if pass == "" {
		pass = "pushrelay-file-key"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(pass),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store { return &Store{ring: ring} }

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Token returns explicit when set, otherwise the stored access token.
func (s *Store) Token(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s == nil {
		return "", ErrNotFound
	}
	return s.Get(KeyAccessToken)
}
