package wifi

import (
	"net"
	"sync"
	"time"
)

// KnownNetwork is a remembered network profile.
type KnownNetwork struct {
	Essid     string    `json:"essid" toml:"essid"`
	Trusted   bool      `json:"trusted,omitempty" toml:"trusted,omitempty"`
	Key       string    `json:"key,omitempty" toml:"key,omitempty"`
	KeyType   KeyType   `json:"key_type,omitempty" toml:"key_type,omitempty"`
	Timestamp time.Time `json:"timestamp" toml:"timestamp"`
	Invalid   bool      `json:"invalid,omitempty" toml:"invalid,omitempty"`
	// Addresses are the access point addresses this network was seen at, used
	// to recover the name of networks that hide their essid.
	Addresses []string `json:"addresses,omitempty" toml:"addresses,omitempty"`
}

// HasAddress reports whether addr is one of the remembered addresses.
func (kn KnownNetwork) HasAddress(addr net.HardwareAddr) bool {
	for _, s := range kn.Addresses {
		known, err := net.ParseMAC(s)
		if err != nil {
			continue
		}
		if known.String() == addr.String() {
			return true
		}
	}
	return false
}

// ApplyTo copies the profile's trust, credentials and timestamp onto ap.
func (kn KnownNetwork) ApplyTo(ap *AccessPoint) {
	ap.SetTrusted(kn.Trusted)
	ap.SetTimestamp(kn.Timestamp)
	ap.SetInvalid(kn.Invalid)
	if kn.Key != "" {
		ap.SetKeySource(kn.Key, kn.KeyType)
	}
}

// KnownNetworks is a read-only view of the remembered network profiles.
type KnownNetworks interface {
	List() []KnownNetwork
	Lookup(essid string) (KnownNetwork, bool)
}

// StaticNetworks is an in-memory KnownNetworks.
type StaticNetworks []KnownNetwork

func (s StaticNetworks) List() []KnownNetwork {
	return append([]KnownNetwork(nil), s...)
}

func (s StaticNetworks) Lookup(essid string) (KnownNetwork, bool) {
	if essid == "" {
		return KnownNetwork{}, false
	}
	for _, kn := range s {
		if kn.Essid == essid {
			return kn, true
		}
	}
	return KnownNetwork{}, false
}

// InvalidList holds networks that were tried and failed. It is shared by all
// devices of a daemon.
type InvalidList struct {
	mu  sync.RWMutex
	aps APList
}

// NewInvalidList returns an empty list.
func NewInvalidList() *InvalidList {
	return &InvalidList{}
}

// Add records a copy of ap as invalid.
func (l *InvalidList) Add(ap *AccessPoint) {
	if ap == nil || ap.Hidden() {
		return
	}
	c := ap.Clone()
	c.SetInvalid(true)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.aps.ByEssid(c.Essid()) != nil {
		return
	}
	l.aps = append(l.aps, c)
}

// Contains reports whether essid has been marked invalid.
func (l *InvalidList) Contains(essid string) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.aps.ByEssid(essid) != nil
}

// Remove forgets essid, so it can be tried again.
func (l *InvalidList) Remove(essid string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ap := range l.aps {
		if ap.Essid() == essid {
			l.aps = append(l.aps[:i], l.aps[i+1:]...)
			return
		}
	}
}

// Clear forgets every invalid network.
func (l *InvalidList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aps = nil
}

// Essids lists the invalid network names.
func (l *InvalidList) Essids() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.aps.Essids()
}
