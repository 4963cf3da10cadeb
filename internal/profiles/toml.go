package profiles

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/shazow/wifid/wifi"
)

type tomlFile struct {
	Networks []wifi.KnownNetwork `toml:"network"`
}

// TOMLStore keeps profiles in a TOML file:
//
//	[[network]]
//	essid = "home"
//	trusted = true
//	key = "0123456789"
//	key_type = "hex"
//
// The file is rewritten on every change.
type TOMLStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	networks []wifi.KnownNetwork
}

var _ Store = (*TOMLStore)(nil)

// OpenTOML loads path. A missing file is an empty store.
func OpenTOML(path string, logger *slog.Logger) (*TOMLStore, error) {
	s := &TOMLStore{path: path, logger: logger}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var f tomlFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, kn := range f.Networks {
		if err := validate(kn); err != nil {
			s.logger.Warn("skipping profile", "path", path, "error", err)
			continue
		}
		s.networks = append(s.networks, kn)
	}
	s.logger.Debug("loaded profiles", "path", path, "count", len(s.networks))
	return s, nil
}

func (s *TOMLStore) List() []wifi.KnownNetwork {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wifi.StaticNetworks(s.networks).List()
}

func (s *TOMLStore) Lookup(essid string) (wifi.KnownNetwork, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wifi.StaticNetworks(s.networks).Lookup(essid)
}

func (s *TOMLStore) Save(kn wifi.KnownNetwork) error {
	if err := validate(kn); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(kn.Essid, func(wifi.KnownNetwork, bool) wifi.KnownNetwork { return kn })
}

func (s *TOMLStore) Remove(essid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, kn := range s.networks {
		if kn.Essid == essid {
			s.networks = append(s.networks[:i:i], s.networks[i+1:]...)
			return s.write()
		}
	}
	return nil
}

// Touch updates the last used time of a known network. Unknown networks are
// ignored: only networks the user saved are remembered.
func (s *TOMLStore) Touch(essid string, addr net.HardwareAddr, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := wifi.StaticNetworks(s.networks).Lookup(essid); !ok {
		return nil
	}
	return s.update(essid, func(kn wifi.KnownNetwork, _ bool) wifi.KnownNetwork {
		return touched(kn, addr, t)
	})
}

func (s *TOMLStore) RememberKey(essid, key string, keyType wifi.KeyType) error {
	if err := validate(wifi.KnownNetwork{Essid: essid, Key: key, KeyType: keyType}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(essid, func(kn wifi.KnownNetwork, _ bool) wifi.KnownNetwork {
		kn.Essid, kn.Key, kn.KeyType = essid, key, keyType
		return kn
	})
}

func (s *TOMLStore) Close() error {
	return nil
}

// update must be called with mu held.
func (s *TOMLStore) update(essid string, fn func(wifi.KnownNetwork, bool) wifi.KnownNetwork) error {
	for i, kn := range s.networks {
		if kn.Essid == essid {
			s.networks[i] = fn(kn, true)
			return s.write()
		}
	}
	s.networks = append(s.networks, fn(wifi.KnownNetwork{Essid: essid}, false))
	return s.write()
}

// write must be called with mu held.
func (s *TOMLStore) write() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tomlFile{Networks: s.networks}); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profiles-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Keys are secrets.
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
