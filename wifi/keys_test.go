package wifi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name    string
		essid   string
		source  string
		keyType KeyType
		want    string
	}{
		{"empty source", "net", "", KeyHex, ""},
		{"hex passes through", "net", "0123456789", KeyHex, "0123456789"},
		{"unknown type passes through", "net", "abcdef", KeyNone, "abcdef"},
		{"64-bit ascii", "net", "abcde", KeyASCII, "6162636465"},
		{"short ascii is 64-bit", "net", "abc", KeyASCII, "616263"},
		{"128-bit ascii", "net", "abcdefghijklm", KeyASCII, "6162636465666768696a6b6c6d"},
		{"long ascii is truncated", "net", "abcdefghijklmnop", KeyASCII, "6162636465666768696a6b6c6d"},
		{"passphrase", "net", "secret", KeyPassphrase, "1c064922046d6517dfef3b7ef3"},
		{"wpa", "IEEE", "password", KeyWPAPassphrase, "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HashKey(tt.essid, tt.source, tt.keyType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWEP128FromPassphraseLength(t *testing.T) {
	assert.Len(t, WEP128FromPassphrase("a"), 26)
	assert.Len(t, WEP128FromPassphrase("a much longer passphrase than sixty four bytes, to check that it is cut"), 26)
}

func TestHashKeyRejectsBadHex(t *testing.T) {
	_, err := HashKey("net", "012345678z", KeyHex)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWPAPSKErrors(t *testing.T) {
	_, err := WPAPSK("net", "short")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = WPAPSK("", "long enough passphrase")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	raw := "F42C6FC52DF0EBEF9EBB4B90B38A5F902E83FE1B135A70E23AED762E9710A12E"
	psk, err := WPAPSK("", raw)
	require.NoError(t, err)
	assert.Equal(t, "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e", psk)
}

func TestParseKeyType(t *testing.T) {
	for _, kt := range []KeyType{KeyNone, KeyPassphrase, KeyASCII, KeyHex, KeyWPAPassphrase} {
		got, err := ParseKeyType(kt.String())
		require.NoError(t, err)
		assert.Equal(t, kt, got)
	}
	_, err := ParseKeyType("rot13")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAuthMethodOrdering(t *testing.T) {
	// Activation steps down one method at a time.
	assert.Equal(t, AuthOpenSystem, AuthSharedKey-1)
	assert.Equal(t, AuthNone, AuthOpenSystem-1)
}
