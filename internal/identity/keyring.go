package identity

import (
	"context"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "afflosync"
	sessionKey  = "session_user_id"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/afflosync/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("afflosync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringProvider resolves the user id from the session stored in the
// system keyring by the sign-in flow.
type KeyringProvider struct{}

func (KeyringProvider) CurrentUserID(ctx context.Context) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(sessionKey)
	if err != nil {
		if err == keyring.ErrKeyNotFound {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("reading session: %w", err)
	}

	if len(item.Data) == 0 {
		return "", ErrNoSession
	}
	return string(item.Data), nil
}

// SetSession stores the signed-in user id in the system keyring.
func SetSession(userID string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  sessionKey,
		Data: []byte(userID),
	})
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// ClearSession removes the stored session from the system keyring.
func ClearSession() error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(sessionKey); err != nil && err != keyring.ErrKeyNotFound {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
