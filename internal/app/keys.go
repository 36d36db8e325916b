package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// MinMasterKeyBytes is the shortest master secret accepted for the vault.
const MinMasterKeyBytes = 16

// DecodeKey decodes a key from hex or base64 to raw bytes. Generated keys are
// hex, so hex is tried first. Anything else is used as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// DecodeMasterKey decodes the vault master secret and enforces its minimum length.
func DecodeMasterKey(value string) ([]byte, error) {
	key, err := DecodeKey(value)
	if err != nil {
		return nil, fmt.Errorf("vault.encryption_key: %w", err)
	}
	if len(key) < MinMasterKeyBytes {
		return nil, fmt.Errorf("vault.encryption_key must decode to at least %d bytes (got %d)", MinMasterKeyBytes, len(key))
	}
	return key, nil
}
