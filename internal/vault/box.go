package vault

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/charlesng35/burnnote/pkg/crypto"
)

// ErrDecryptionFailed is returned by Open for any corrupt, truncated or
// mismatched input. No partial plaintext is ever returned alongside it.
var ErrDecryptionFailed = errors.New("vault: decryption failed")

// KeyWrapper protects data keys at rest. *MasterKey implements it.
type KeyWrapper interface {
	Wrap(dataKey []byte) (string, error)
	Unwrap(wrapped string) ([]byte, error)
}

// Box seals messages with AES-256-GCM under a fresh random key per message.
type Box struct {
	wrapper KeyWrapper
}

// NewBox returns a Box. With a nil wrapper, data keys are stored base64 encoded.
func NewBox(wrapper KeyWrapper) *Box {
	return &Box{wrapper: wrapper}
}

// Seal encrypts plaintext under a newly generated key and returns the
// ciphertext with the storable form of that key.
func (b *Box) Seal(plaintext []byte) ([]byte, string, error) {
	dataKey, err := crypto.GenerateKey(crypto.KeySize)
	if err != nil {
		return nil, "", fmt.Errorf("vault: generate data key: %w", err)
	}

	ciphertext, err := crypto.SealGCM(plaintext, dataKey)
	if err != nil {
		return nil, "", fmt.Errorf("vault: seal: %w", err)
	}

	storedKey, err := b.encodeKey(dataKey)
	if err != nil {
		return nil, "", err
	}
	return ciphertext, storedKey, nil
}

// Open decrypts ciphertext with the stored key produced by Seal.
func (b *Box) Open(ciphertext []byte, storedKey string) ([]byte, error) {
	if len(ciphertext) == 0 || storedKey == "" {
		return nil, ErrDecryptionFailed
	}

	dataKey, err := b.decodeKey(storedKey)
	if err != nil || len(dataKey) != crypto.KeySize {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := crypto.OpenGCM(ciphertext, dataKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// CheckKey reports whether storedKey unwraps to a usable data key under the
// current master key. The message itself is never decrypted.
func (b *Box) CheckKey(storedKey string) error {
	if storedKey == "" {
		return ErrDecryptionFailed
	}
	dataKey, err := b.decodeKey(storedKey)
	if err != nil || len(dataKey) != crypto.KeySize {
		return ErrDecryptionFailed
	}
	return nil
}

func (b *Box) encodeKey(dataKey []byte) (string, error) {
	if b.wrapper == nil {
		return base64.StdEncoding.EncodeToString(dataKey), nil
	}
	wrapped, err := b.wrapper.Wrap(dataKey)
	if err != nil {
		return "", fmt.Errorf("vault: wrap data key: %w", err)
	}
	return wrapped, nil
}

func (b *Box) decodeKey(storedKey string) ([]byte, error) {
	if b.wrapper == nil {
		return base64.StdEncoding.DecodeString(storedKey)
	}
	return b.wrapper.Unwrap(storedKey)
}
