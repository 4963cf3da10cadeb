package wifi

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// CancelKey is the key value a credential prompt returns when the user
// dismissed it.
const CancelKey = "***canceled***"

// KeyType tells how a stored key source is turned into driver key material.
type KeyType int

const (
	KeyNone KeyType = iota
	// KeyPassphrase is a free-form passphrase hashed into a 128-bit WEP key.
	KeyPassphrase
	// KeyASCII is a 5 or 13 character WEP key.
	KeyASCII
	// KeyHex is a WEP key already in hex.
	KeyHex
	// KeyWPAPassphrase is a WPA-PSK passphrase.
	KeyWPAPassphrase
)

func (k KeyType) String() string {
	switch k {
	case KeyNone:
		return "none"
	case KeyPassphrase:
		return "passphrase"
	case KeyASCII:
		return "ascii"
	case KeyHex:
		return "hex"
	case KeyWPAPassphrase:
		return "wpa"
	}
	return fmt.Sprintf("KeyType(%d)", int(k))
}

// ParseKeyType is the inverse of KeyType.String.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return KeyNone, nil
	case "passphrase":
		return KeyPassphrase, nil
	case "ascii":
		return KeyASCII, nil
	case "hex":
		return KeyHex, nil
	case "wpa", "psk":
		return KeyWPAPassphrase, nil
	}
	return KeyNone, fmt.Errorf("unknown key type %q: %w", s, ErrInvalidArgument)
}

func (k KeyType) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *KeyType) UnmarshalText(b []byte) error {
	t, err := ParseKeyType(string(b))
	if err != nil {
		return err
	}
	*k = t
	return nil
}

// AuthMethod is the 802.11 authentication method used to associate. Methods
// are ordered from weakest to strongest so a failed attempt can step down.
type AuthMethod int

const (
	AuthNone AuthMethod = iota
	AuthOpenSystem
	AuthSharedKey
	// AuthWPAPSK is only used with KeyWPAPassphrase keys.
	AuthWPAPSK
)

func (a AuthMethod) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthOpenSystem:
		return "open system"
	case AuthSharedKey:
		return "shared key"
	case AuthWPAPSK:
		return "wpa-psk"
	}
	return fmt.Sprintf("AuthMethod(%d)", int(a))
}

// DummyKey is set on the card while probing for an encrypted network we have
// no key for. Association still succeeds on most cards, which is all the
// probe needs.
const DummyKey = "11111111111111111111111111"

// HashKey derives driver key material from a key source.
func HashKey(essid, source string, keyType KeyType) (string, error) {
	if source == "" {
		return "", nil
	}
	switch keyType {
	case KeyPassphrase:
		return WEP128FromPassphrase(source), nil
	case KeyASCII:
		if len(source) <= 5 {
			return asciiToHex(source, 5), nil
		}
		return asciiToHex(source, 13), nil
	case KeyHex:
		if _, err := hex.DecodeString(source); err != nil {
			return "", fmt.Errorf("key is not hex: %w", ErrInvalidArgument)
		}
		return source, nil
	case KeyNone:
		return source, nil
	case KeyWPAPassphrase:
		return WPAPSK(essid, source)
	}
	return "", fmt.Errorf("unknown key type %d: %w", keyType, ErrInvalidArgument)
}

// WEP128FromPassphrase hashes a passphrase into a 104 bit WEP key: MD5 over
// the passphrase repeated to 64 bytes, truncated to 13 bytes.
func WEP128FromPassphrase(passphrase string) string {
	if passphrase == "" {
		return ""
	}
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = passphrase[i%len(passphrase)]
	}
	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:13])
}

func asciiToHex(s string, max int) string {
	if len(s) > max {
		s = s[:max]
	}
	return hex.EncodeToString([]byte(s))
}

// WPAPSK derives the 256 bit pre-shared key for a WPA passphrase. A 64
// character hex string is taken to be the PSK already.
func WPAPSK(essid, passphrase string) (string, error) {
	if len(passphrase) == 64 {
		if _, err := hex.DecodeString(passphrase); err == nil {
			return strings.ToLower(passphrase), nil
		}
	}
	if len(passphrase) < 8 || len(passphrase) > 63 {
		return "", fmt.Errorf("wpa passphrase must be 8-63 characters: %w", ErrInvalidArgument)
	}
	if essid == "" {
		return "", fmt.Errorf("wpa key needs an essid: %w", ErrInvalidArgument)
	}
	psk := pbkdf2.Key([]byte(passphrase), []byte(essid), 4096, 32, sha1.New)
	return hex.EncodeToString(psk), nil
}
