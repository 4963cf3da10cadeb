package wifi

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"
)

// HiddenEssid is the placeholder some drivers report for networks that do
// not broadcast their name.
const HiddenEssid = "<hidden>"

// Mode is the operating mode of a network.
type Mode int

const (
	ModeInfra Mode = iota
	ModeAdHoc
)

func (m Mode) String() string {
	switch m {
	case ModeInfra:
		return "infrastructure"
	case ModeAdHoc:
		return "ad-hoc"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// AccessPoint describes one observed or remembered network.
//
// AccessPoints are shared between the registry and the best-AP slot of a
// device, so all accessors are safe for concurrent use.
type AccessPoint struct {
	mu sync.RWMutex

	essid       string
	address     net.HardwareAddr
	mode        Mode
	encrypted   bool
	keySource   string
	keyType     KeyType
	strength    int
	frequency   uint // MHz
	trusted     bool
	invalid     bool
	artificial  bool
	userCreated bool
	timestamp   time.Time
}

// NewAccessPoint returns an infrastructure AccessPoint with unknown strength.
func NewAccessPoint(essid string) *AccessPoint {
	ap := &AccessPoint{strength: -1}
	ap.SetEssid(essid)
	return ap
}

// NormalizeEssid maps blank names and the hidden sentinel to "".
func NormalizeEssid(essid string) string {
	if essid == HiddenEssid {
		return ""
	}
	return essid
}

func (ap *AccessPoint) Essid() string {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.essid
}

func (ap *AccessPoint) SetEssid(essid string) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.essid = NormalizeEssid(essid)
}

// Hidden reports whether the essid is unknown.
func (ap *AccessPoint) Hidden() bool {
	return ap.Essid() == ""
}

func (ap *AccessPoint) Address() net.HardwareAddr {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	if ap.address == nil {
		return nil
	}
	return append(net.HardwareAddr(nil), ap.address...)
}

func (ap *AccessPoint) SetAddress(addr net.HardwareAddr) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if addr == nil {
		ap.address = nil
		return
	}
	ap.address = append(net.HardwareAddr(nil), addr...)
}

// HasAddress reports whether the access point has a valid hardware address
// equal to addr.
func (ap *AccessPoint) HasAddress(addr net.HardwareAddr) bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ValidAddress(ap.address) && bytes.Equal(ap.address, addr)
}

func (ap *AccessPoint) Mode() Mode {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.mode
}

func (ap *AccessPoint) SetMode(mode Mode) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.mode = mode
}

func (ap *AccessPoint) Encrypted() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.encrypted
}

func (ap *AccessPoint) SetEncrypted(encrypted bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.encrypted = encrypted
}

// KeySource returns the raw key material and how it should be interpreted.
func (ap *AccessPoint) KeySource() (string, KeyType) {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.keySource, ap.keyType
}

func (ap *AccessPoint) SetKeySource(source string, keyType KeyType) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.keySource = source
	ap.keyType = keyType
	if source == "" {
		ap.keyType = KeyNone
	}
}

// HasKey reports whether usable key material is stored.
func (ap *AccessPoint) HasKey() bool {
	src, _ := ap.KeySource()
	return src != ""
}

// NeedsKey reports whether the network is encrypted and no key is stored.
func (ap *AccessPoint) NeedsKey() bool {
	return ap.Encrypted() && !ap.HasKey()
}

// HashedKey derives the key handed to the driver from the stored source.
func (ap *AccessPoint) HashedKey() (string, error) {
	ap.mu.RLock()
	essid, src, typ := ap.essid, ap.keySource, ap.keyType
	ap.mu.RUnlock()
	return HashKey(essid, src, typ)
}

// Strength is 0-100, or -1 when unknown.
func (ap *AccessPoint) Strength() int {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.strength
}

func (ap *AccessPoint) SetStrength(strength int) {
	if strength > 100 {
		strength = 100
	}
	if strength < -1 {
		strength = -1
	}
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.strength = strength
}

// Frequency is in MHz, 0 when unknown.
func (ap *AccessPoint) Frequency() uint {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.frequency
}

func (ap *AccessPoint) SetFrequency(freq uint) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.frequency = freq
}

func (ap *AccessPoint) Trusted() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.trusted
}

func (ap *AccessPoint) SetTrusted(trusted bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.trusted = trusted
}

func (ap *AccessPoint) Invalid() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.invalid
}

func (ap *AccessPoint) SetInvalid(invalid bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.invalid = invalid
}

// Artificial access points were inferred from a successful association
// rather than observed in a scan.
func (ap *AccessPoint) Artificial() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.artificial
}

func (ap *AccessPoint) SetArtificial(artificial bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.artificial = artificial
}

// UserCreated is set on ad-hoc networks originated by this device.
func (ap *AccessPoint) UserCreated() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.userCreated
}

func (ap *AccessPoint) SetUserCreated(userCreated bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.userCreated = userCreated
}

func (ap *AccessPoint) Timestamp() time.Time {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.timestamp
}

func (ap *AccessPoint) SetTimestamp(t time.Time) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.timestamp = t
}

// Clone returns an independent copy of the access point.
func (ap *AccessPoint) Clone() *AccessPoint {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	c := &AccessPoint{
		essid:       ap.essid,
		mode:        ap.mode,
		encrypted:   ap.encrypted,
		keySource:   ap.keySource,
		keyType:     ap.keyType,
		strength:    ap.strength,
		frequency:   ap.frequency,
		trusted:     ap.trusted,
		invalid:     ap.invalid,
		artificial:  ap.artificial,
		userCreated: ap.userCreated,
		timestamp:   ap.timestamp,
	}
	if ap.address != nil {
		c.address = append(net.HardwareAddr(nil), ap.address...)
	}
	return c
}

func (ap *AccessPoint) String() string {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	essid := ap.essid
	if essid == "" {
		essid = HiddenEssid
	}
	return fmt.Sprintf("%s (%s)", essid, ap.address)
}

// ValidAddress reports whether addr looks like a real access point address.
// Some cards report all-zero, broadcast or fixed placeholder addresses when
// they are not associated.
func ValidAddress(addr net.HardwareAddr) bool {
	if len(addr) != 6 {
		return false
	}
	for _, bad := range invalidAddresses {
		if bytes.Equal(addr, bad) {
			return false
		}
	}
	return true
}

var invalidAddresses = []net.HardwareAddr{
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	{0x44, 0x44, 0x44, 0x44, 0x44, 0x44},
	{0x00, 0x30, 0xb4, 0x00, 0x00, 0x00}, // prism54
}
