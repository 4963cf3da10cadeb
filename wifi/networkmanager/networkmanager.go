//go:build linux

// Package networkmanager drives a wireless device through NetworkManager.
//
// NetworkManager does not expose the individual radio settings, so they are
// staged locally and committed as a one-shot connection profile when the
// essid is set. The same Driver configures IP, since NetworkManager runs DHCP
// as part of activating a connection.
package networkmanager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/google/uuid"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
)

const connectionTimeout = 30 * time.Second

// profilePrefix marks connection profiles created by this driver.
const profilePrefix = "wifid-"

// Driver implements wifi.Driver and ipconfig.Configurator for one
// NetworkManager device.
type Driver struct {
	NM     gonetworkmanager.NetworkManager
	Device gonetworkmanager.DeviceWireless
	iface  string
	logger *slog.Logger

	// ConnectionTimeout bounds how long Configure waits for activation.
	ConnectionTimeout time.Duration

	mu      sync.Mutex
	up      bool
	mode    wifi.Mode
	freq    uint
	bitrate int
	key     string
	auth    wifi.AuthMethod
	essid   string
	active  gonetworkmanager.ActiveConnection
	aps     map[string]gonetworkmanager.AccessPoint
}

var (
	_ wifi.Driver           = (*Driver)(nil)
	_ ipconfig.Configurator = (*Driver)(nil)
)

// New finds the wireless device named iface, or the first one if iface is
// empty.
func New(iface string, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create network manager client: %w", wifi.ErrNotAvailable)
	}
	dev, name, err := findDevice(nm, iface)
	if err != nil {
		return nil, err
	}
	return newDriver(nm, dev, name, logger), nil
}

func newDriver(nm gonetworkmanager.NetworkManager, dev gonetworkmanager.DeviceWireless, iface string, logger *slog.Logger) *Driver {
	return &Driver{
		NM:                nm,
		Device:            dev,
		iface:             iface,
		logger:            logger.With("driver", "networkmanager"),
		ConnectionTimeout: connectionTimeout,
		up:                true,
		aps:               map[string]gonetworkmanager.AccessPoint{},
	}
}

func findDevice(nm gonetworkmanager.NetworkManager, iface string) (gonetworkmanager.DeviceWireless, string, error) {
	devices, err := nm.GetDevices()
	if err != nil {
		return nil, "", err
	}
	for _, device := range devices {
		dev, ok := device.(gonetworkmanager.DeviceWireless)
		if !ok {
			continue
		}
		name, err := dev.GetPropertyInterface()
		if err != nil {
			continue
		}
		if iface == "" || name == iface {
			return dev, name, nil
		}
	}
	if iface == "" {
		return nil, "", fmt.Errorf("no wireless device found: %w", wifi.ErrNotFound)
	}
	return nil, "", fmt.Errorf("wireless device %q: %w", iface, wifi.ErrNotFound)
}

func (d *Driver) Interface() string {
	return d.iface
}

func (d *Driver) Capabilities(ctx context.Context) (wifi.Capabilities, error) {
	var freqs []uint
	for ch := 1; ch <= 13; ch++ {
		freqs = append(freqs, wifi.ChannelToFrequency(ch))
	}
	return wifi.Capabilities{
		Support:        wifi.SupportFull,
		NumFrequencies: len(freqs),
		Frequencies:    freqs,
		MaxQuality:     100,
	}, nil
}

// SetUp tracks the interface state. Taking the interface down drops the
// current connection; NetworkManager keeps the device itself managed.
func (d *Driver) SetUp(ctx context.Context, up bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.up = up
	if !up {
		return d.dropLocked()
	}
	return nil
}

func (d *Driver) IsUp(ctx context.Context) (bool, error) {
	enabled, err := d.NM.GetPropertyWirelessEnabled()
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, wifi.ErrWirelessDisabled
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up, nil
}

// Scan requests a scan and returns the access points NetworkManager knows.
// NetworkManager refuses scans that follow each other too closely; that is
// reported as wifi.ErrScanNotReady.
func (d *Driver) Scan(ctx context.Context) ([]wifi.RawAP, error) {
	if err := d.Device.RequestScan(); err != nil {
		d.logger.Debug("scan request refused", "error", err)
		return nil, fmt.Errorf("%v: %w", err, wifi.ErrScanNotReady)
	}
	aps, err := d.Device.GetAccessPoints()
	if err != nil {
		return nil, err
	}

	byEssid := map[string]gonetworkmanager.AccessPoint{}
	var out []wifi.RawAP
	for _, ap := range aps {
		raw, err := convertAP(ap)
		if err != nil {
			d.logger.Debug("skipping access point", "error", err)
			continue
		}
		if raw.Essid != "" {
			byEssid[raw.Essid] = ap
		}
		out = append(out, raw)
	}

	d.mu.Lock()
	d.aps = byEssid
	d.mu.Unlock()
	return out, nil
}

func convertAP(ap gonetworkmanager.AccessPoint) (wifi.RawAP, error) {
	ssid, err := ap.GetPropertySSID()
	if err != nil {
		return wifi.RawAP{}, err
	}
	hw, err := ap.GetPropertyHWAddress()
	if err != nil {
		return wifi.RawAP{}, err
	}
	addr, err := net.ParseMAC(hw)
	if err != nil {
		return wifi.RawAP{}, err
	}

	strength, _ := ap.GetPropertyStrength()
	freq, _ := ap.GetPropertyFrequency()
	flags, _ := ap.GetPropertyFlags()
	wpaFlags, _ := ap.GetPropertyWPAFlags()
	rsnFlags, _ := ap.GetPropertyRSNFlags()
	mode, _ := ap.GetPropertyMode()

	secure := uint32(flags)&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0 || wpaFlags > 0 || rsnFlags > 0
	raw := wifi.RawAP{
		Essid:       ssid,
		Address:     addr,
		KeyDisabled: !secure,
		Quality:     wifi.Quality{Qual: int(strength), MaxQual: 100},
		Frequency:   uint(freq),
	}
	if mode == gonetworkmanager.Nm80211ModeAdhoc {
		raw.Mode = wifi.ModeAdHoc
	}
	return raw, nil
}

func (d *Driver) Mode(ctx context.Context) (wifi.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

func (d *Driver) SetMode(ctx context.Context, mode wifi.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
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
	d.freq = freq
	return nil
}

func (d *Driver) Bitrate(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bitrate, nil
}

// SetBitrate is staged only; NetworkManager picks rates itself.
func (d *Driver) SetBitrate(ctx context.Context, kbps int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bitrate = kbps
	return nil
}

func (d *Driver) Essid(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return "", nil
	}
	return d.essid, nil
}

func (d *Driver) SetKey(ctx context.Context, key string, auth wifi.AuthMethod) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.key, d.auth = key, auth
	return nil
}

// SetEssid commits the staged settings as a connection and starts activating
// it. A blank essid drops the current connection.
func (d *Driver) SetEssid(ctx context.Context, essid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.dropLocked(); err != nil {
		d.logger.Debug("dropping connection", "error", err)
	}
	d.essid = essid
	if wifi.NormalizeEssid(essid) == "" || !d.up {
		return nil
	}

	settings := d.settingsLocked(essid)
	var (
		active gonetworkmanager.ActiveConnection
		err    error
	)
	if ap, ok := d.aps[essid]; ok && d.mode == wifi.ModeInfra {
		active, err = d.NM.AddAndActivateWirelessConnection(settings, d.Device, ap)
	} else {
		active, err = d.NM.AddAndActivateConnection(settings, d.Device)
	}
	if err != nil {
		return fmt.Errorf("activating %q: %w", essid, err)
	}
	d.active = active
	d.logger.Debug("connection added", "essid", essid, "auth", d.auth, "mode", d.mode)
	return nil
}

// settingsLocked builds a connection profile from the staged settings.
func (d *Driver) settingsLocked(essid string) map[string]map[string]interface{} {
	settings := map[string]map[string]interface{}{
		"connection": {
			"id":             profilePrefix + essid,
			"uuid":           uuid.New().String(),
			"type":           "802-11-wireless",
			"interface-name": d.iface,
			"autoconnect":    false,
		},
		"802-11-wireless": {
			"mode": "infrastructure",
			"ssid": []byte(essid),
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}
	wireless := settings["802-11-wireless"]
	if d.mode == wifi.ModeAdHoc {
		wireless["mode"] = "adhoc"
		settings["ipv4"]["method"] = "link-local"
		settings["ipv6"]["method"] = "link-local"
		if ch := wifi.FrequencyToChannel(d.freq); ch > 0 {
			band := "bg"
			if d.freq > 5000 {
				band = "a"
			}
			wireless["band"] = band
			wireless["channel"] = uint32(ch)
		}
	} else if _, ok := d.aps[essid]; !ok {
		wireless["hidden"] = true
	}

	if d.key == "" {
		return settings
	}
	wireless["security"] = "802-11-wireless-security"
	switch d.auth {
	case wifi.AuthWPAPSK:
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      d.key,
		}
	default:
		alg := "open"
		if d.auth == wifi.AuthSharedKey {
			alg = "shared"
		}
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt":     "none",
			"auth-alg":     alg,
			"wep-key0":     d.key,
			"wep-key-type": uint32(1),
		}
	}
	return settings
}

// dropLocked deactivates and deletes the connection this driver created.
func (d *Driver) dropLocked() error {
	active := d.active
	d.active = nil
	if active == nil {
		return nil
	}
	conn, connErr := active.GetPropertyConnection()
	if err := d.NM.DeactivateConnection(active); err != nil {
		return err
	}
	if connErr != nil {
		return connErr
	}
	return conn.Delete()
}

func (d *Driver) activeState() (gonetworkmanager.NmActiveConnectionState, bool) {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if active == nil {
		return gonetworkmanager.NmActiveConnectionStateUnknown, false
	}
	state, err := active.GetPropertyState()
	if err != nil {
		return gonetworkmanager.NmActiveConnectionStateUnknown, false
	}
	return state, true
}

// Associated reports whether the connection is activating or up.
// NetworkManager does not separate association from the rest of activation.
func (d *Driver) Associated(ctx context.Context) (bool, error) {
	state, ok := d.activeState()
	if !ok {
		return false, nil
	}
	return state == gonetworkmanager.NmActiveConnectionStateActivating ||
		state == gonetworkmanager.NmActiveConnectionStateActivated, nil
}

func (d *Driver) currentAP() gonetworkmanager.AccessPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	return d.aps[d.essid]
}

func (d *Driver) APAddress(ctx context.Context) (net.HardwareAddr, error) {
	none := net.HardwareAddr{0, 0, 0, 0, 0, 0}
	associated, _ := d.Associated(ctx)
	ap := d.currentAP()
	if !associated || ap == nil {
		return none, nil
	}
	hw, err := ap.GetPropertyHWAddress()
	if err != nil {
		return none, err
	}
	return net.ParseMAC(hw)
}

func (d *Driver) LinkQuality(ctx context.Context) (wifi.Quality, error) {
	ap := d.currentAP()
	if ap == nil {
		return wifi.Quality{}, wifi.ErrNotAssociated
	}
	strength, err := ap.GetPropertyStrength()
	if err != nil {
		return wifi.Quality{}, err
	}
	return wifi.Quality{Qual: int(strength), MaxQual: 100}, nil
}

// Configure waits for NetworkManager to finish activating the connection,
// which includes DHCP or link-local addressing.
func (d *Driver) Configure(ctx context.Context, iface string, autoOnly bool) (ipconfig.Result, error) {
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if active == nil {
		return ipconfig.Result{Status: ipconfig.StatusFailed}, nil
	}

	changes := make(chan gonetworkmanager.StateChange, 1)
	done := make(chan struct{})
	defer close(done)
	if err := active.SubscribeState(changes, done); err != nil {
		return ipconfig.Result{Status: ipconfig.StatusFailed}, err
	}

	state, err := active.GetPropertyState()
	if err != nil {
		return ipconfig.Result{Status: ipconfig.StatusFailed}, err
	}
	timeout := time.NewTimer(d.ConnectionTimeout)
	defer timeout.Stop()
	for {
		switch state {
		case gonetworkmanager.NmActiveConnectionStateActivated:
			return ipconfig.Result{Status: ipconfig.StatusBound, Lease: &lease{d: d, active: active}}, nil
		case gonetworkmanager.NmActiveConnectionStateDeactivated:
			return ipconfig.Result{Status: ipconfig.StatusFailed}, nil
		}
		select {
		case <-ctx.Done():
			return ipconfig.Result{Status: ipconfig.StatusFailed}, ctx.Err()
		case <-timeout.C:
			d.logger.Info("connection timed out", "iface", iface)
			return ipconfig.Result{Status: ipconfig.StatusFailed}, nil
		case change := <-changes:
			state = change.State
		}
	}
}

// lease is renewed by NetworkManager itself.
type lease struct {
	d      *Driver
	active gonetworkmanager.ActiveConnection
}

func (l *lease) RenewIn() time.Duration           { return 0 }
func (l *lease) Renew(ctx context.Context) error { return nil }

func (l *lease) Release(ctx context.Context) error {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	if l.d.active != l.active {
		return nil
	}
	return l.d.dropLocked()
}
