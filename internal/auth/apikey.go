package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeyPrefix is the prefix for all API keys
	KeyPrefix = "ign_key_"
	// KeyLength is the length of the random part of the key
	KeyLength = 32
)

// ErrInvalidKey is returned for keys that are not configured.
var ErrInvalidKey = errors.New("invalid API key")

// Key identifies the holder of an API key.
type Key struct {
	Name string
	Hash string
}

// KeyValidator resolves a presented API key.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (*Key, error)
}

// GenerateAPIKey generates a new API key.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(bytes), nil
}

// HashAPIKey hashes an API key for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// StaticKeys validates keys against a fixed set of hashes. Only hashes are
// held, so the configuration never contains a usable key.
type StaticKeys struct {
	byHash map[string]*Key
}

// ParseKeys reads "name=sha256hex" entries.
func ParseKeys(entries []string) (*StaticKeys, error) {
	s := &StaticKeys{byHash: make(map[string]*Key, len(entries))}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, "=")
		hash = strings.ToLower(strings.TrimSpace(hash))
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("API key entry %q: want name=hash", entry)
		}
		if raw, err := hex.DecodeString(hash); err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("API key entry %q: hash must be 64 hex digits", strings.TrimSpace(name))
		}
		s.byHash[hash] = &Key{Name: strings.TrimSpace(name), Hash: hash}
	}
	return s, nil
}

// Len returns the number of configured keys.
func (s *StaticKeys) Len() int { return len(s.byHash) }

// ValidateAPIKey implements KeyValidator.
func (s *StaticKeys) ValidateAPIKey(_ context.Context, key string) (*Key, error) {
	if k, ok := s.byHash[HashAPIKey(key)]; ok {
		return k, nil
	}
	return nil, ErrInvalidKey
}
