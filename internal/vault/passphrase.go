package vault

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/charlesng35/burnnote/pkg/crypto"
)

const passphraseSaltLength = 16

// ErrEmptyPassphrase is returned when hashing an empty passphrase.
var ErrEmptyPassphrase = errors.New("vault: passphrase is empty")

// PassphraseGate hashes and checks optional secret passphrases with salted Argon2id.
type PassphraseGate struct {
	params crypto.Argon2Parameters
}

// NewPassphraseGate returns a gate using the given cost parameters.
func NewPassphraseGate(params crypto.Argon2Parameters) (*PassphraseGate, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PassphraseGate{params: params}, nil
}

// DefaultPassphraseGate returns a gate using crypto.PassphraseArgon2Params.
func DefaultPassphraseGate() *PassphraseGate {
	return &PassphraseGate{params: crypto.PassphraseArgon2Params()}
}

// Hash returns an encoded digest embedding a random salt and the cost parameters.
func (g *PassphraseGate) Hash(passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	salt, err := crypto.GenerateKey(passphraseSaltLength)
	if err != nil {
		return "", fmt.Errorf("vault: generate salt: %w", err)
	}
	hash, err := crypto.DeriveKeyArgon2id([]byte(passphrase), salt, g.params)
	if err != nil {
		return "", fmt.Errorf("vault: hash passphrase: %w", err)
	}
	return crypto.EncodeArgon2idHash(salt, hash, g.params), nil
}

// Verify reports whether candidate matches digest. An empty digest means the
// secret has no passphrase and any candidate is accepted.
func (g *PassphraseGate) Verify(digest, candidate string) bool {
	if digest == "" {
		return true
	}
	if candidate == "" {
		return false
	}

	salt, expected, params, err := crypto.DecodeArgon2idHash(digest)
	if err != nil {
		return false
	}
	actual, err := crypto.DeriveKeyArgon2id([]byte(candidate), salt, params)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
