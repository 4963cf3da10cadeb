package mock

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shazow/wifid/wifi"
)

var DefaultActionSleep = 200 * time.Millisecond

// Network is a simulated network the mock radio can see and join.
type Network struct {
	Essid   string
	Address net.HardwareAddr
	Mode    wifi.Mode
	// Key is the hex key material the network expects. Empty means the
	// network is unencrypted.
	Key string
	// NoSharedKey networks reject shared key authentication.
	NoSharedKey bool
	// NoOpenSystem networks reject open system authentication.
	NoOpenSystem bool
	// HideEssid networks are reported without a name in scans.
	HideEssid bool
	// NotInScan networks can be joined but never show up in scans.
	NotInScan bool
	Strength  int
	Frequency uint
}

// Encrypted reports whether the network needs a key.
func (n Network) Encrypted() bool {
	return n.Key != ""
}

// Call is one recorded driver call.
type Call struct {
	Name  string
	Value string
}

func (c Call) String() string {
	return c.Name + ":" + c.Value
}

// Driver is an in-memory wifi.Driver for tests and demos.
//
// Open system authentication associates whatever key is set, like real
// hardware does; a wrong key only shows up later as a failed DHCP. Shared key
// authentication needs the right key to associate.
type Driver struct {
	mu sync.Mutex

	Iface    string
	Caps     wifi.Capabilities
	Networks []Network

	ScanError error
	// ScanNotReady is the number of scans that return wifi.ErrScanNotReady
	// before results are available.
	ScanNotReady int
	SetUpError   error
	SetEssidError error
	// StickyAddress keeps reporting the previous access point address when an
	// association fails, like some cards that never de-associate.
	StickyAddress bool

	// ActionSleep is a delay before every action, to better emulate real
	// hardware. Set to 0 during testing.
	ActionSleep time.Duration

	up        bool
	mode      wifi.Mode
	freq      uint
	bitrate   int
	essid     string
	key       string
	auth      wifi.AuthMethod
	joined    *Network
	lastAddr  net.HardwareAddr
	calls     []Call
	scanCount int
}

var _ wifi.Driver = (*Driver)(nil)

func addr(s string) net.HardwareAddr {
	a, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return a
}

// New creates a mock driver with a list of fun networks.
func New(iface string) *Driver {
	networks := []Network{
		{Essid: "green", Address: addr("70:37:03:70:37:03"), Strength: 59, Frequency: 2412},
		{Essid: "bay", Address: addr("12:34:56:78:90:ab"), Key: "0123456789", Strength: 10, Frequency: 2437},
		{Essid: "packers", Address: addr("cd:ef:12:34:56:78"), Strength: 78, Frequency: 2462},
		{Essid: "rule", Address: addr("90:ab:cd:ef:12:34"), Key: "0123456789abcdef0123456789", Strength: 39, Frequency: 5180},
		{Essid: "HideYoKidsHideYoWiFi", Address: addr("02:00:00:00:00:01"), HideEssid: true, Strength: 64, Frequency: 2412},
		{Essid: "NeverGonnaGiveYouIP", Address: addr("02:00:00:00:00:02"), Key: "6162636465", Strength: 45, Frequency: 2437},
		{Essid: "Unencrypted_Honeypot", Address: addr("02:00:00:00:00:03"), Strength: 91, Frequency: 2462},
		{Essid: "Police Surveillance 2", Address: addr("02:00:00:00:00:04"), Key: wifi.WEP128FromPassphrase("surveillance"), Strength: 48, Frequency: 5240},
		{Essid: "TacoBoutAGoodSignal", Address: addr("02:00:00:00:00:05"), Strength: 99, Frequency: 2412},
		{Essid: "I Believe Wi Can Fi", Address: addr("02:00:00:00:00:06"), Mode: wifi.ModeAdHoc, Strength: 30, Frequency: 2447},
	}
	var freqs []uint
	for ch := 1; ch <= 11; ch++ {
		freqs = append(freqs, wifi.ChannelToFrequency(ch))
	}
	return &Driver{
		Iface: iface,
		Caps: wifi.Capabilities{
			Support:        wifi.SupportFull,
			NumFrequencies: len(freqs),
			Frequencies:    freqs,
			MaxQuality:     100,
		},
		Networks:    networks,
		ActionSleep: DefaultActionSleep,
	}
}

func (d *Driver) sleep(ctx context.Context) {
	if d.ActionSleep <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d.ActionSleep):
	}
}

func (d *Driver) record(name, value string) {
	d.calls = append(d.calls, Call{Name: name, Value: value})
}

// Calls returns the recorded calls, optionally only those named name.
func (d *Driver) Calls(name string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (d *Driver) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// ScanCount is the number of scans performed.
func (d *Driver) ScanCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanCount
}

// SetNetworks replaces the simulated networks.
func (d *Driver) SetNetworks(networks ...Network) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Networks = networks
}

func (d *Driver) Interface() string {
	return d.Iface
}

func (d *Driver) Capabilities(ctx context.Context) (wifi.Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Caps, nil
}

func (d *Driver) SetUp(ctx context.Context, up bool) error {
	d.sleep(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("up", fmt.Sprint(up))
	if d.SetUpError != nil {
		return d.SetUpError
	}
	d.up = up
	if !up {
		d.joined = nil
	}
	return nil
}

func (d *Driver) IsUp(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up, nil
}

func (d *Driver) Scan(ctx context.Context) ([]wifi.RawAP, error) {
	d.sleep(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanCount++
	d.record("scan", d.mode.String())
	if d.ScanError != nil {
		return nil, d.ScanError
	}
	if d.ScanNotReady > 0 {
		d.ScanNotReady--
		return nil, wifi.ErrScanNotReady
	}
	var results []wifi.RawAP
	for _, n := range d.Networks {
		if n.NotInScan {
			continue
		}
		raw := wifi.RawAP{
			Essid:       n.Essid,
			Address:     n.Address,
			Mode:        n.Mode,
			KeyDisabled: !n.Encrypted(),
			Quality:     wifi.Quality{Qual: n.Strength, MaxQual: 100},
			Frequency:   n.Frequency,
		}
		if n.HideEssid {
			raw.Essid = ""
		}
		results = append(results, raw)
	}
	return results, nil
}

func (d *Driver) Mode(ctx context.Context) (wifi.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

func (d *Driver) SetMode(ctx context.Context, mode wifi.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("mode", mode.String())
	d.mode = mode
	return nil
}

func (d *Driver) Frequency(ctx context.Context) (uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freq, nil
}

func (d *Driver) SetFrequency(ctx context.Context, freq uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("freq", fmt.Sprint(freq))
	d.freq = freq
	return nil
}

func (d *Driver) Bitrate(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bitrate, nil
}

func (d *Driver) SetBitrate(ctx context.Context, kbps int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("bitrate", fmt.Sprint(kbps))
	d.bitrate = kbps
	return nil
}

func (d *Driver) Essid(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.essid, nil
}

func (d *Driver) SetKey(ctx context.Context, key string, auth wifi.AuthMethod) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if key == "" {
		d.record("key", "none")
	} else {
		d.record("key", auth.String())
	}
	d.key = strings.ToLower(key)
	d.auth = auth
	return nil
}

// SetEssid associates with the named network using the staged settings.
func (d *Driver) SetEssid(ctx context.Context, essid string) error {
	d.sleep(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("essid", essid)
	if d.SetEssidError != nil {
		return d.SetEssidError
	}
	d.essid = essid
	if d.joined != nil {
		d.lastAddr = d.joined.Address
	}
	d.joined = nil
	if strings.TrimSpace(essid) == "" || !d.up {
		return nil
	}

	if d.mode == wifi.ModeAdHoc {
		// Joining or creating a cell always works.
		n := d.find(essid)
		if n == nil {
			n = &Network{Essid: essid, Mode: wifi.ModeAdHoc, Address: cellAddress(essid), Key: d.key, Frequency: d.freq, Strength: 100}
		}
		d.joined = n
		return nil
	}

	n := d.find(essid)
	if n == nil || n.Mode != d.mode {
		return nil
	}
	switch {
	case !n.Encrypted():
		// Open networks refuse stations with privacy enabled.
		if d.key != "" {
			return nil
		}
	case d.auth == wifi.AuthSharedKey:
		if n.NoSharedKey || d.key != strings.ToLower(n.Key) {
			return nil
		}
	case d.auth == wifi.AuthOpenSystem:
		if n.NoOpenSystem || d.key == "" {
			return nil
		}
	default:
		return nil
	}
	d.joined = n
	return nil
}

func (d *Driver) find(essid string) *Network {
	for i := range d.Networks {
		if d.Networks[i].Essid == essid {
			return &d.Networks[i]
		}
	}
	return nil
}

// cellAddress derives a stable locally administered cell id for an ad-hoc
// network.
func cellAddress(essid string) net.HardwareAddr {
	sum := sha1.Sum([]byte(essid))
	a := net.HardwareAddr(sum[:6])
	a[0] = (a[0] | 0x02) & 0xfe
	return a
}

func (d *Driver) Associated(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joined != nil, nil
}

func (d *Driver) APAddress(ctx context.Context) (net.HardwareAddr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.joined != nil {
		return d.joined.Address, nil
	}
	if d.StickyAddress && d.lastAddr != nil {
		return d.lastAddr, nil
	}
	return net.HardwareAddr{0, 0, 0, 0, 0, 0}, nil
}

func (d *Driver) LinkQuality(ctx context.Context) (wifi.Quality, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.joined == nil {
		return wifi.Quality{}, nil
	}
	return wifi.Quality{Qual: d.joined.Strength, MaxQual: 100}, nil
}

// KeyAccepted reports whether traffic would flow on the current association:
// the card is associated and the key matches what the network expects.
func (d *Driver) KeyAccepted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.joined == nil {
		return false
	}
	return d.key == strings.ToLower(d.joined.Key)
}
