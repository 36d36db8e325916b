package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/charlesng35/burnnote/pkg/crypto"
)

const defaultSaltLength = 16

// MasterKey wraps per-secret data keys with a key derived from the deployment
// master secret, so a database dump alone cannot decrypt stored secrets.
type MasterKey struct {
	key    []byte
	params crypto.Argon2Parameters
}

type masterKeyConfig struct {
	params crypto.Argon2Parameters
	salt   []byte
}

// Option configures master key derivation.
type Option func(*masterKeyConfig)

// WithSalt overrides the salt used for Argon2 key derivation.
func WithSalt(salt []byte) Option {
	cp := append([]byte(nil), salt...)
	return func(cfg *masterKeyConfig) {
		cfg.salt = cp
	}
}

// WithArgon2Parameters overrides the Argon2 parameters used during key derivation.
func WithArgon2Parameters(params crypto.Argon2Parameters) Option {
	return func(cfg *masterKeyConfig) {
		cfg.params = params
	}
}

// NewMasterKey derives the wrapping key from secret using Argon2id. Without an
// explicit salt one is derived from the secret so restarts yield the same key.
func NewMasterKey(secret []byte, opts ...Option) (*MasterKey, error) {
	if len(secret) == 0 {
		return nil, errors.New("vault: master key is required")
	}

	cfg := masterKeyConfig{params: crypto.DefaultArgon2Params()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		sum := sha256.Sum256(secret)
		cfg.salt = sum[:defaultSaltLength]
	} else if len(cfg.salt) < defaultSaltLength {
		return nil, fmt.Errorf("vault: salt must be at least %d bytes (got %d)", defaultSaltLength, len(cfg.salt))
	}

	derived, err := crypto.DeriveKeyArgon2id(secret, cfg.salt, cfg.params)
	if err != nil {
		return nil, fmt.Errorf("vault: derive master key: %w", err)
	}

	return &MasterKey{
		key:    derived,
		params: cfg.params,
	}, nil
}

// Wrap encrypts a data key for storage.
func (m *MasterKey) Wrap(dataKey []byte) (string, error) {
	if m == nil || len(m.key) == 0 {
		return "", errors.New("vault: master key is not initialised")
	}
	return crypto.Encrypt(dataKey, m.key)
}

// Unwrap recovers a data key produced by Wrap.
func (m *MasterKey) Unwrap(wrapped string) ([]byte, error) {
	if m == nil || len(m.key) == 0 {
		return nil, errors.New("vault: master key is not initialised")
	}
	return crypto.Decrypt(wrapped, m.key)
}

// Parameters returns the Argon2 parameters used during derivation.
func (m *MasterKey) Parameters() crypto.Argon2Parameters {
	if m == nil {
		return crypto.Argon2Parameters{}
	}
	return m.params
}
