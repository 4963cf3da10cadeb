// Package wpasupplicant drives a wireless device through the wpa_supplicant
// D-Bus interface.
package wpasupplicant

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifid/wifi"
)

const (
	service        = "fi.w1.wpa_supplicant1"
	servicePath    = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	ifaceInterface = service + ".Interface"
	bssInterface   = service + ".BSS"

	scanTimeout = 10 * time.Second
)

// Driver implements wifi.Driver on top of one wpa_supplicant interface.
// Radio settings are staged and committed as a network block when the essid
// is set.
type Driver struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	iface  string
	logger *slog.Logger

	// ScanTimeout bounds how long Scan waits for ScanDone.
	ScanTimeout time.Duration

	mu      sync.Mutex
	up      bool
	network dbus.ObjectPath
	staged  settings
}

var _ wifi.Driver = (*Driver)(nil)

// New attaches to iface, asking wpa_supplicant to manage it if it does not
// already.
func New(ctx context.Context, iface string, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", wifi.ErrNotAvailable)
	}

	root := conn.Object(service, servicePath)
	var path dbus.ObjectPath
	if err := root.CallWithContext(ctx, service+".GetInterface", 0, iface).Store(&path); err != nil {
		logger.Debug("interface not managed, creating", "iface", iface, "error", err)
		args := map[string]interface{}{"Ifname": iface}
		if err := root.CallWithContext(ctx, service+".CreateInterface", 0, args).Store(&path); err != nil {
			conn.Close()
			return nil, fmt.Errorf("could not find interface %v: %w", iface, wifi.ErrNotFound)
		}
	}

	return &Driver{
		conn:        conn,
		obj:         conn.Object(service, path),
		iface:       iface,
		logger:      logger.With("driver", "wpa_supplicant"),
		ScanTimeout: scanTimeout,
		up:          true,
	}, nil
}

func (d *Driver) Close() error {
	return d.conn.Close()
}

func (d *Driver) Interface() string {
	return d.iface
}

func (d *Driver) Capabilities(ctx context.Context) (wifi.Capabilities, error) {
	var freqs []uint
	for ch := 1; ch <= 13; ch++ {
		freqs = append(freqs, wifi.ChannelToFrequency(ch))
	}
	// Signal is reported in dBm, so there is no quality scale.
	return wifi.Capabilities{
		Support:        wifi.SupportFull,
		NumFrequencies: len(freqs),
		Frequencies:    freqs,
	}, nil
}

func (d *Driver) SetUp(ctx context.Context, up bool) error {
	d.mu.Lock()
	d.up = up
	d.mu.Unlock()
	if up {
		return nil
	}
	return d.disconnect(ctx)
}

func (d *Driver) IsUp(ctx context.Context) (bool, error) {
	state, err := d.state()
	if err != nil {
		return false, err
	}
	if state == "interface_disabled" {
		return false, wifi.ErrWirelessDisabled
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up, nil
}

func (d *Driver) state() (string, error) {
	v, err := d.obj.GetProperty(ifaceInterface + ".State")
	if err != nil {
		return "", fmt.Errorf("could not get state: %w", err)
	}
	state, _ := v.Value().(string)
	return state, nil
}

// Scan triggers an active scan and waits for ScanDone before reading the BSS
// list. A refused or unsuccessful scan is reported as wifi.ErrScanNotReady.
func (d *Driver) Scan(ctx context.Context) ([]wifi.RawAP, error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(d.obj.Path()),
		dbus.WithMatchInterface(ifaceInterface),
		dbus.WithMatchMember("ScanDone"),
	}
	if err := d.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return nil, fmt.Errorf("could not add signal: %w", err)
	}
	defer d.conn.RemoveMatchSignal(match...)

	signals := make(chan *dbus.Signal, 4)
	d.conn.Signal(signals)
	defer d.conn.RemoveSignal(signals)

	call := d.obj.CallWithContext(ctx, ifaceInterface+".Scan", 0, map[string]interface{}{"Type": "active"})
	if call.Err != nil {
		d.logger.Debug("scan refused", "error", call.Err)
		return nil, fmt.Errorf("%v: %w", call.Err, wifi.ErrScanNotReady)
	}

	timeout := time.NewTimer(d.ScanTimeout)
	defer timeout.Stop()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, wifi.ErrScanNotReady
		case sig := <-signals:
			if sig.Path != d.obj.Path() || sig.Name != ifaceInterface+".ScanDone" {
				continue
			}
			if ok, _ := firstBool(sig.Body); !ok {
				return nil, wifi.ErrScanNotReady
			}
			done = true
		}
	}

	v, err := d.obj.GetProperty(ifaceInterface + ".BSSs")
	if err != nil {
		return nil, fmt.Errorf("could not get bsss: %w", err)
	}
	paths, _ := v.Value().([]dbus.ObjectPath)

	aps := make([]wifi.RawAP, 0, len(paths))
	for _, path := range paths {
		props, err := d.bssProperties(ctx, path)
		if err != nil {
			d.logger.Debug("skipping bss", "path", path, "error", err)
			continue
		}
		ap, err := parseBSS(props)
		if err != nil {
			d.logger.Debug("skipping bss", "path", path, "error", err)
			continue
		}
		aps = append(aps, ap)
	}
	return aps, nil
}

func firstBool(body []interface{}) (bool, bool) {
	if len(body) == 0 {
		return false, false
	}
	b, ok := body[0].(bool)
	return b, ok
}

func (d *Driver) bssProperties(ctx context.Context, path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	obj := d.conn.Object(service, path)
	if err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.GetAll", 0, bssInterface).Store(&props); err != nil {
		return nil, fmt.Errorf("could not get all properties: %w", err)
	}
	return props, nil
}

// parseBSS converts the properties of a BSS object.
func parseBSS(props map[string]dbus.Variant) (wifi.RawAP, error) {
	var ap wifi.RawAP

	ssid, ok := props["SSID"].Value().([]byte)
	if !ok {
		return ap, errors.New("mandatory property SSID was missing")
	}
	bssid, ok := props["BSSID"].Value().([]byte)
	if !ok || len(bssid) != 6 {
		return ap, errors.New("mandatory property BSSID was missing")
	}
	ap.Essid = wifi.NormalizeEssid(string(ssid))
	ap.Address = net.HardwareAddr(bssid)

	if privacy, ok := props["Privacy"].Value().(bool); ok {
		ap.KeyDisabled = !privacy
	}
	if mode, ok := props["Mode"].Value().(string); ok && mode == "ad-hoc" {
		ap.Mode = wifi.ModeAdHoc
	}
	if signal, ok := props["Signal"].Value().(int16); ok {
		ap.Quality = wifi.Quality{Level: int(signal)}
	}
	if freq, ok := props["Frequency"].Value().(uint16); ok {
		ap.Frequency = uint(freq)
	}
	return ap, nil
}

func (d *Driver) Mode(ctx context.Context) (wifi.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staged.mode, nil
}

func (d *Driver) SetMode(ctx context.Context, mode wifi.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staged.mode = mode
	return nil
}

func (d *Driver) Frequency(ctx context.Context) (uint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staged.freq, nil
}

func (d *Driver) SetFrequency(ctx context.Context, freq uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staged.freq = freq
	return nil
}

func (d *Driver) Bitrate(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staged.bitrate, nil
}

// SetBitrate is staged only; wpa_supplicant leaves rate control to the
// kernel.
func (d *Driver) SetBitrate(ctx context.Context, kbps int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staged.bitrate = kbps
	return nil
}

func (d *Driver) Essid(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.network == "" {
		return "", nil
	}
	return d.staged.essid, nil
}

func (d *Driver) SetKey(ctx context.Context, key string, auth wifi.AuthMethod) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staged.key, d.staged.auth = key, auth
	return nil
}

// SetEssid replaces the current network block with one built from the staged
// settings and selects it. A blank essid disconnects.
func (d *Driver) SetEssid(ctx context.Context, essid string) error {
	if err := d.disconnect(ctx); err != nil {
		d.logger.Debug("disconnecting", "error", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.staged.essid = essid
	if wifi.NormalizeEssid(essid) == "" || !d.up {
		return nil
	}

	args, err := d.staged.networkArgs()
	if err != nil {
		return err
	}
	var path dbus.ObjectPath
	if err := d.obj.CallWithContext(ctx, ifaceInterface+".AddNetwork", 0, args).Store(&path); err != nil {
		return fmt.Errorf("could not add network: %w", err)
	}
	if call := d.obj.CallWithContext(ctx, ifaceInterface+".SelectNetwork", 0, path); call.Err != nil {
		_ = d.obj.CallWithContext(ctx, ifaceInterface+".RemoveNetwork", 0, path).Err
		return fmt.Errorf("could not select network: %w", call.Err)
	}
	d.network = path
	d.logger.Debug("network selected", "essid", essid, "path", path)
	return nil
}

func (d *Driver) disconnect(ctx context.Context) error {
	d.mu.Lock()
	path := d.network
	d.network = ""
	d.mu.Unlock()
	if path == "" {
		return nil
	}
	if call := d.obj.CallWithContext(ctx, ifaceInterface+".Disconnect", 0); call.Err != nil {
		d.logger.Debug("disconnect", "error", call.Err)
	}
	if call := d.obj.CallWithContext(ctx, ifaceInterface+".RemoveNetwork", 0, path); call.Err != nil {
		return fmt.Errorf("could not remove network: %w", call.Err)
	}
	return nil
}

// associatedStates are the supplicant states in which the card is associated.
var associatedStates = map[string]bool{
	"associated":      true,
	"4way_handshake":  true,
	"group_handshake": true,
	"completed":       true,
}

func (d *Driver) Associated(ctx context.Context) (bool, error) {
	state, err := d.state()
	if err != nil {
		return false, err
	}
	return associatedStates[state], nil
}

func (d *Driver) currentBSS(ctx context.Context) (map[string]dbus.Variant, error) {
	v, err := d.obj.GetProperty(ifaceInterface + ".CurrentBSS")
	if err != nil {
		return nil, err
	}
	path, _ := v.Value().(dbus.ObjectPath)
	if path == "" || path == "/" {
		return nil, wifi.ErrNotAssociated
	}
	return d.bssProperties(ctx, path)
}

func (d *Driver) APAddress(ctx context.Context) (net.HardwareAddr, error) {
	none := net.HardwareAddr{0, 0, 0, 0, 0, 0}
	props, err := d.currentBSS(ctx)
	if errors.Is(err, wifi.ErrNotAssociated) {
		return none, nil
	} else if err != nil {
		return none, err
	}
	ap, err := parseBSS(props)
	if err != nil {
		return none, err
	}
	return ap.Address, nil
}

func (d *Driver) LinkQuality(ctx context.Context) (wifi.Quality, error) {
	props, err := d.currentBSS(ctx)
	if err != nil {
		return wifi.Quality{}, err
	}
	ap, err := parseBSS(props)
	if err != nil {
		return wifi.Quality{}, err
	}
	return ap.Quality, nil
}

// settings staged until the essid is set.
type settings struct {
	essid   string
	mode    wifi.Mode
	freq    uint
	bitrate int
	key     string
	auth    wifi.AuthMethod
}

// networkArgs builds an AddNetwork argument. Keys are passed as byte arrays,
// which wpa_supplicant takes as raw hex rather than as a quoted passphrase.
func (s settings) networkArgs() (map[string]interface{}, error) {
	args := map[string]interface{}{
		"ssid":      s.essid,
		"scan_ssid": uint32(1),
	}
	if s.mode == wifi.ModeAdHoc {
		args["mode"] = uint32(1)
		args["scan_ssid"] = uint32(0)
		if s.freq > 0 {
			args["frequency"] = int32(s.freq)
		}
	}

	if s.key == "" {
		args["key_mgmt"] = "NONE"
		return args, nil
	}
	raw, err := hex.DecodeString(s.key)
	if err != nil {
		return nil, fmt.Errorf("key is not hex: %w", wifi.ErrInvalidArgument)
	}
	switch s.auth {
	case wifi.AuthWPAPSK:
		args["key_mgmt"] = "WPA-PSK"
		args["psk"] = raw
	default:
		args["key_mgmt"] = "NONE"
		args["wep_key0"] = raw
		args["wep_tx_keyidx"] = int32(0)
		args["auth_alg"] = "OPEN"
		if s.auth == wifi.AuthSharedKey {
			args["auth_alg"] = "SHARED"
		}
	}
	return args, nil
}
