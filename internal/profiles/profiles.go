// Package profiles stores remembered wireless networks: their keys, whether
// they are trusted and when they were last used.
package profiles

import (
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shazow/wifid/wifi"
)

// Store is a writable profile store.
type Store interface {
	wifi.KnownNetworks

	// Save inserts or replaces the profile named kn.Essid.
	Save(kn wifi.KnownNetwork) error
	// Remove forgets essid. Removing an unknown network is not an error.
	Remove(essid string) error
	// Touch records a successful connection to essid at addr.
	Touch(essid string, addr net.HardwareAddr, t time.Time) error
	// RememberKey stores the key for essid, creating the profile if needed.
	RememberKey(essid, key string, keyType wifi.KeyType) error
	Close() error
}

// Open opens the store at path. Files ending in .db or .bolt are bbolt
// databases, everything else is TOML.
func Open(path string, logger *slog.Logger) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("profile store needs a path: %w", wifi.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".bolt":
		return OpenBolt(path, logger)
	}
	return OpenTOML(path, logger)
}

func validate(kn wifi.KnownNetwork) error {
	if wifi.NormalizeEssid(kn.Essid) == "" {
		return fmt.Errorf("profile needs an essid: %w", wifi.ErrInvalidArgument)
	}
	if _, err := wifi.HashKey(kn.Essid, kn.Key, kn.KeyType); err != nil {
		return fmt.Errorf("profile %q: %w", kn.Essid, err)
	}
	return nil
}

// touched returns kn updated for a connection at addr and time t.
func touched(kn wifi.KnownNetwork, addr net.HardwareAddr, t time.Time) wifi.KnownNetwork {
	kn.Timestamp = t
	kn.Invalid = false
	if wifi.ValidAddress(addr) && !kn.HasAddress(addr) {
		kn.Addresses = append(slices.Clone(kn.Addresses), addr.String())
	}
	return kn
}
