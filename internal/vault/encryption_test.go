package vault

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/burnnote/pkg/crypto"
)

func testParams() crypto.Argon2Parameters {
	return crypto.Argon2Parameters{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32}
}

func TestNewMasterKeyIsDeterministic(t *testing.T) {
	first, err := NewMasterKey([]byte("deployment-secret"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)
	second, err := NewMasterKey([]byte("deployment-secret"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	require.Equal(t, testParams(), first.Parameters())

	wrapped, err := first.Wrap([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	unwrapped, err := second.Unwrap(wrapped)
	require.NoError(t, err, "a restarted process must unwrap keys wrapped before")
	require.Equal(t, []byte("0123456789abcdef0123456789abcdef"), unwrapped)
}

func TestMasterKeyUnwrapWithDifferentSecretFails(t *testing.T) {
	a, err := NewMasterKey([]byte("secret-a"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)
	b, err := NewMasterKey([]byte("secret-b"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	wrapped, err := a.Wrap(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	_, err = b.Unwrap(wrapped)
	require.Error(t, err)
}

func TestNewMasterKeyValidation(t *testing.T) {
	_, err := NewMasterKey(nil)
	require.Error(t, err)

	_, err = NewMasterKey([]byte("secret"), WithSalt([]byte("short")))
	require.ErrorContains(t, err, "salt must be at least")

	custom := bytes.Repeat([]byte{0x42}, 16)
	salted, err := NewMasterKey([]byte("secret"), WithSalt(custom), WithArgon2Parameters(testParams()))
	require.NoError(t, err)
	derived, err := NewMasterKey([]byte("secret"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	wrapped, err := salted.Wrap(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	_, err = derived.Unwrap(wrapped)
	require.Error(t, err, "an explicit salt yields a different wrapping key")

	var nilKey *MasterKey
	_, err = nilKey.Wrap([]byte("x"))
	require.Error(t, err)
	require.Equal(t, crypto.Argon2Parameters{}, nilKey.Parameters())
}
