package vault

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBoxes(t *testing.T) map[string]*Box {
	t.Helper()
	master, err := NewMasterKey([]byte("deployment-secret"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)
	return map[string]*Box{
		"plain":   NewBox(nil),
		"wrapped": NewBox(master),
	}
}

func TestBoxRoundTrip(t *testing.T) {
	for name, box := range newTestBoxes(t) {
		t.Run(name, func(t *testing.T) {
			for _, message := range [][]byte{[]byte("the eagle lands at dawn"), {}, []byte("ünïcødé 🔥")} {
				ciphertext, key, err := box.Seal(message)
				require.NoError(t, err)
				require.NotEmpty(t, key)

				plaintext, err := box.Open(ciphertext, key)
				require.NoError(t, err)
				require.Equal(t, string(message), string(plaintext))
			}
		})
	}
}

func TestBoxUsesFreshKeyPerSeal(t *testing.T) {
	box := NewBox(nil)

	c1, k1, err := box.Seal([]byte("same"))
	require.NoError(t, err)
	c2, k2, err := box.Seal([]byte("same"))
	require.NoError(t, err)

	require.NotEqual(t, k1, k2)
	require.NotEqual(t, c1, c2)

	_, err = box.Open(c1, k2)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestBoxOpenFailsClosed(t *testing.T) {
	for name, box := range newTestBoxes(t) {
		t.Run(name, func(t *testing.T) {
			ciphertext, key, err := box.Seal([]byte("classified"))
			require.NoError(t, err)

			tampered := append([]byte(nil), ciphertext...)
			tampered[len(tampered)/2] ^= 0x01

			cases := map[string]struct {
				ciphertext []byte
				key        string
			}{
				"tampered ciphertext": {tampered, key},
				"truncated":           {ciphertext[:5], key},
				"empty ciphertext":    {nil, key},
				"empty key":           {ciphertext, ""},
				"garbage key":         {ciphertext, "not-a-key"},
			}
			for caseName, tc := range cases {
				plaintext, err := box.Open(tc.ciphertext, tc.key)
				require.ErrorIs(t, err, ErrDecryptionFailed, caseName)
				require.Nil(t, plaintext, caseName)
			}
		})
	}
}

func TestBoxRejectsKeysWrappedByAnotherMaster(t *testing.T) {
	a, err := NewMasterKey([]byte("a"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)
	b, err := NewMasterKey([]byte("b"), WithArgon2Parameters(testParams()))
	require.NoError(t, err)

	ciphertext, key, err := NewBox(a).Seal([]byte("hello"))
	require.NoError(t, err)

	_, err = NewBox(b).Open(ciphertext, key)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	require.NoError(t, NewBox(a).CheckKey(key))
	require.ErrorIs(t, NewBox(b).CheckKey(key), ErrDecryptionFailed)
	require.ErrorIs(t, NewBox(a).CheckKey(""), ErrDecryptionFailed)
}
