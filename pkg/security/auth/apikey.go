package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidKey is returned for keys not in the keyring.
var ErrInvalidKey = errors.New("invalid API key")

type storedKey struct {
	name   string
	digest [sha256.Size]byte
}

// Keyring holds the accepted API keys. Only digests are kept, and every
// lookup compares against all of them in constant time.
type Keyring struct {
	mu   sync.RWMutex
	keys []storedKey
}

// NewKeyring creates a keyring. Names must be unique and values non-empty.
func NewKeyring(keys []Key) (*Keyring, error) {
	k := &Keyring{}
	if err := k.Replace(keys); err != nil {
		return nil, err
	}
	return k, nil
}

// Replace swaps the accepted keys atomically. On error the keyring is
// unchanged.
func (k *Keyring) Replace(keys []Key) error {
	stored := make([]storedKey, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key.Name == "" {
			return errors.New("API key without a name")
		}
		if key.Value == "" {
			return fmt.Errorf("API key %q has no value", key.Name)
		}
		if seen[key.Name] {
			return fmt.Errorf("duplicate API key name %q", key.Name)
		}
		seen[key.Name] = true
		stored = append(stored, storedKey{name: key.Name, digest: sha256.Sum256([]byte(key.Value))})
	}

	k.mu.Lock()
	k.keys = stored
	k.mu.Unlock()
	return nil
}

// Authenticate returns the name of the key matching value.
func (k *Keyring) Authenticate(value string) (string, error) {
	digest := sha256.Sum256([]byte(value))

	k.mu.RLock()
	defer k.mu.RUnlock()

	var name string
	for _, key := range k.keys {
		if subtle.ConstantTimeCompare(digest[:], key.digest[:]) == 1 {
			name = key.name
		}
	}
	if name == "" {
		return "", ErrInvalidKey
	}
	return name, nil
}

// Len returns the number of keys.
func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
