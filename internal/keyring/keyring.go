// Package keyring stores the development-mode master secret for the field
// codecs. Production deployments load key material from an explicit secret
// reference instead; this package only backs the dev fallback.
//
// The system keychain is tried first (macOS Keychain, Windows Credential
// Manager, libsecret on Linux). Headless environments fall back to a file
// at ~/.bastion/master.key with 0600 permissions. Key creation is guarded
// by a file lock so concurrent first runs agree on one key.
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// AccountName identifies the key entry inside the keyring service.
	AccountName = "master-secret"
	// KeySize is the master secret size in bytes.
	KeySize = 32
)

// serviceName returns the keyring service, overridable for test isolation.
func serviceName() string {
	if name := os.Getenv("BASTION_KEYRING_SERVICE"); name != "" {
		return name
	}
	return "bastion"
}

// ErrInsecurePermissions is returned when the key file is readable by other
// users. A loosened mode means the key may have been exposed.
var ErrInsecurePermissions = errors.New("key file has insecure permissions")

func encodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// GetOrCreateKey returns the dev master secret, creating it on first use.
func GetOrCreateKey() ([]byte, error) {
	if key, err := keychainGet(); err == nil {
		return key, nil
	}

	path, err := keyFilePath()
	if err != nil {
		return nil, err
	}
	if key, err := fileGet(path); err == nil {
		return key, nil
	} else if errors.Is(err, ErrInsecurePermissions) {
		return nil, err
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	// Keychain first; fall back to file when no keychain is available
	// (CI, containers, headless servers).
	if err := keychainSet(key); err == nil {
		// Re-read: another process may have won the race.
		return keychainGet()
	}
	if err := fileSet(path, key); err != nil {
		return nil, err
	}
	return fileGet(path)
}

// DeleteKey removes the dev master secret from all backends. Used by tests
// and explicit key rotation.
func DeleteKey() error {
	_ = keyring.Delete(serviceName(), AccountName)
	path, err := keyFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting key file: %w", err)
	}
	return nil
}

func keychainGet() ([]byte, error) {
	encoded, err := keyring.Get(serviceName(), AccountName)
	if err != nil {
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return decodeKey(encoded)
}

func keychainSet(key []byte) error {
	// Never overwrite: if another process created a key between our get and
	// set, that key wins.
	if _, err := keyring.Get(serviceName(), AccountName); err == nil {
		return nil
	}
	return keyring.Set(serviceName(), AccountName, encodeKey(key))
}

func fileGet(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o, expected 0600; chmod it and consider rotating",
			ErrInsecurePermissions, path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return decodeKey(string(data))
}

func fileSet(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	lockPath := path + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("creating lock file: %w", err)
	}
	defer lf.Close()
	defer os.Remove(lockPath)

	unlock, err := lockFile(lf)
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	defer unlock()

	// Another process may have created the key while we waited for the lock.
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(encodeKey(key)), 0600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// keyFilePath returns the fallback key file location. The service name is
// folded into the filename when overridden so tests stay isolated.
func keyFilePath() (string, error) {
	filename := "master.key"
	if name := os.Getenv("BASTION_KEYRING_SERVICE"); name != "" {
		filename = name + ".key"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if envHome := os.Getenv("HOME"); envHome != "" {
			return filepath.Join(envHome, ".bastion", filename), nil
		}
		// Temp dirs may be world-readable or cleared on reboot; refuse.
		return "", fmt.Errorf("could not determine home directory for key storage: %w", err)
	}
	return filepath.Join(home, ".bastion", filename), nil
}
