//go:build linux

package networkmanager

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
)

type mockNM struct {
	gonetworkmanager.NetworkManager
	devices     []gonetworkmanager.Device
	enabled     bool
	added       []map[string]map[string]interface{}
	withAP      []gonetworkmanager.AccessPoint
	active      *mockActive
	deactivated int
}

func (m *mockNM) GetDevices() ([]gonetworkmanager.Device, error) {
	return m.devices, nil
}

func (m *mockNM) GetPropertyWirelessEnabled() (bool, error) {
	return m.enabled, nil
}

func (m *mockNM) AddAndActivateConnection(conn map[string]map[string]interface{}, d gonetworkmanager.Device) (gonetworkmanager.ActiveConnection, error) {
	m.added = append(m.added, conn)
	m.withAP = append(m.withAP, nil)
	return m.active, nil
}

func (m *mockNM) AddAndActivateWirelessConnection(conn map[string]map[string]interface{}, d gonetworkmanager.Device, ap gonetworkmanager.AccessPoint) (gonetworkmanager.ActiveConnection, error) {
	m.added = append(m.added, conn)
	m.withAP = append(m.withAP, ap)
	return m.active, nil
}

func (m *mockNM) DeactivateConnection(c gonetworkmanager.ActiveConnection) error {
	m.deactivated++
	return nil
}

type mockDeviceWireless struct {
	gonetworkmanager.DeviceWireless
	name    string
	aps     []gonetworkmanager.AccessPoint
	scanErr error
}

func (m *mockDeviceWireless) GetPropertyInterface() (string, error) {
	return m.name, nil
}

func (m *mockDeviceWireless) RequestScan() error {
	return m.scanErr
}

func (m *mockDeviceWireless) GetAccessPoints() ([]gonetworkmanager.AccessPoint, error) {
	return m.aps, nil
}

type mockAP struct {
	gonetworkmanager.AccessPoint
	ssid     string
	hw       string
	strength uint8
	freq     uint32
	private  bool
	rsn      uint32
}

func (m *mockAP) GetPropertySSID() (string, error)      { return m.ssid, nil }
func (m *mockAP) GetPropertyHWAddress() (string, error) { return m.hw, nil }
func (m *mockAP) GetPropertyStrength() (uint8, error)   { return m.strength, nil }
func (m *mockAP) GetPropertyFrequency() (uint32, error) { return m.freq, nil }
func (m *mockAP) GetPropertyWPAFlags() (uint32, error)  { return 0, nil }
func (m *mockAP) GetPropertyRSNFlags() (uint32, error)  { return m.rsn, nil }

func (m *mockAP) GetPropertyFlags() (uint32, error) {
	if m.private {
		return uint32(gonetworkmanager.Nm80211APFlagsPrivacy), nil
	}
	return 0, nil
}

func (m *mockAP) GetPropertyMode() (gonetworkmanager.Nm80211Mode, error) {
	return gonetworkmanager.Nm80211ModeInfra, nil
}

type mockConnection struct {
	gonetworkmanager.Connection
	deleted int
}

func (m *mockConnection) Delete() error {
	m.deleted++
	return nil
}

type mockActive struct {
	gonetworkmanager.ActiveConnection
	state gonetworkmanager.NmActiveConnectionState
	next  []gonetworkmanager.NmActiveConnectionState
	conn  *mockConnection
}

func (m *mockActive) GetPropertyState() (gonetworkmanager.NmActiveConnectionState, error) {
	return m.state, nil
}

func (m *mockActive) GetPropertyConnection() (gonetworkmanager.Connection, error) {
	return m.conn, nil
}

func (m *mockActive) SubscribeState(receiver chan gonetworkmanager.StateChange, exit chan struct{}) error {
	go func() {
		for _, s := range m.next {
			select {
			case receiver <- gonetworkmanager.StateChange{State: s}:
			case <-exit:
				return
			}
		}
	}()
	return nil
}

func newTestDriver(aps ...gonetworkmanager.AccessPoint) (*Driver, *mockNM) {
	dev := &mockDeviceWireless{name: "wlan0", aps: aps}
	nm := &mockNM{
		devices: []gonetworkmanager.Device{dev},
		enabled: true,
		active: &mockActive{
			state: gonetworkmanager.NmActiveConnectionStateActivating,
			conn:  &mockConnection{},
		},
	}
	return newDriver(nm, dev, "wlan0", slog.New(slog.DiscardHandler)), nm
}

func TestFindDevice(t *testing.T) {
	wlan0 := &mockDeviceWireless{name: "wlan0"}
	wlan1 := &mockDeviceWireless{name: "wlan1"}
	nm := &mockNM{devices: []gonetworkmanager.Device{wlan0, wlan1}}

	dev, name, err := findDevice(nm, "")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", name)
	assert.Same(t, wlan0, dev)

	_, name, err = findDevice(nm, "wlan1")
	require.NoError(t, err)
	assert.Equal(t, "wlan1", name)

	_, _, err = findDevice(nm, "wlan7")
	assert.ErrorIs(t, err, wifi.ErrNotFound)
}

func TestScan(t *testing.T) {
	d, _ := newTestDriver(
		&mockAP{ssid: "cafe", hw: "00:11:22:33:44:55", strength: 80, freq: 2437},
		&mockAP{ssid: "office", hw: "00:11:22:33:44:66", strength: 40, freq: 5180, private: true},
		&mockAP{ssid: "bad", hw: "not-a-mac"},
	)
	aps, err := d.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 2)

	assert.Equal(t, "cafe", aps[0].Essid)
	assert.True(t, aps[0].KeyDisabled)
	assert.Equal(t, 80, wifi.QualityToPercent(aps[0].Quality, 100))
	assert.Equal(t, uint(2437), aps[0].Frequency)

	assert.Equal(t, "office", aps[1].Essid)
	assert.False(t, aps[1].KeyDisabled)
	assert.Equal(t, "00:11:22:33:44:66", aps[1].Address.String())
}

func TestScanRefused(t *testing.T) {
	d, _ := newTestDriver()
	d.Device.(*mockDeviceWireless).scanErr = errors.New("scanning not allowed immediately following previous scan")
	_, err := d.Scan(context.Background())
	assert.ErrorIs(t, err, wifi.ErrScanNotReady)
}

func TestIsUp(t *testing.T) {
	d, nm := newTestDriver()
	ctx := context.Background()

	up, err := d.IsUp(ctx)
	require.NoError(t, err)
	assert.True(t, up)

	nm.enabled = false
	_, err = d.IsUp(ctx)
	assert.ErrorIs(t, err, wifi.ErrWirelessDisabled)
}

func TestSetEssidSettings(t *testing.T) {
	ctx := context.Background()
	ap := &mockAP{ssid: "office", hw: "00:11:22:33:44:66", strength: 40, private: true}

	t.Run("wep shared key", func(t *testing.T) {
		d, nm := newTestDriver(ap)
		_, err := d.Scan(ctx)
		require.NoError(t, err)

		require.NoError(t, d.SetKey(ctx, "0123456789", wifi.AuthSharedKey))
		require.NoError(t, d.SetEssid(ctx, "office"))
		require.Len(t, nm.added, 1)
		assert.Same(t, ap, nm.withAP[0])

		settings := nm.added[0]
		assert.Equal(t, "wifid-office", settings["connection"]["id"])
		assert.Equal(t, []byte("office"), settings["802-11-wireless"]["ssid"])
		sec := settings["802-11-wireless-security"]
		assert.Equal(t, "none", sec["key-mgmt"])
		assert.Equal(t, "shared", sec["auth-alg"])
		assert.Equal(t, "0123456789", sec["wep-key0"])

		essid, err := d.Essid(ctx)
		require.NoError(t, err)
		assert.Equal(t, "office", essid)
	})

	t.Run("ad-hoc", func(t *testing.T) {
		d, nm := newTestDriver()
		require.NoError(t, d.SetMode(ctx, wifi.ModeAdHoc))
		require.NoError(t, d.SetFrequency(ctx, wifi.ChannelToFrequency(6)))
		require.NoError(t, d.SetKey(ctx, "", wifi.AuthNone))
		require.NoError(t, d.SetEssid(ctx, "mesh"))

		require.Len(t, nm.added, 1)
		assert.Nil(t, nm.withAP[0])
		settings := nm.added[0]
		assert.Equal(t, "adhoc", settings["802-11-wireless"]["mode"])
		assert.Equal(t, uint32(6), settings["802-11-wireless"]["channel"])
		assert.Equal(t, "link-local", settings["ipv4"]["method"])
		assert.NotContains(t, settings, "802-11-wireless-security")
	})

	t.Run("blank essid drops the connection", func(t *testing.T) {
		d, nm := newTestDriver()
		require.NoError(t, d.SetEssid(ctx, "cafe"))
		require.NoError(t, d.SetEssid(ctx, ""))
		assert.Len(t, nm.added, 1)
		assert.Equal(t, 1, nm.deactivated)
		assert.Equal(t, 1, nm.active.conn.deleted)

		essid, err := d.Essid(ctx)
		require.NoError(t, err)
		assert.Empty(t, essid)
	})
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()

	t.Run("activated", func(t *testing.T) {
		d, nm := newTestDriver()
		nm.active.next = []gonetworkmanager.NmActiveConnectionState{gonetworkmanager.NmActiveConnectionStateActivated}
		require.NoError(t, d.SetEssid(ctx, "cafe"))

		associated, err := d.Associated(ctx)
		require.NoError(t, err)
		assert.True(t, associated)

		res, err := d.Configure(ctx, "wlan0", false)
		require.NoError(t, err)
		assert.Equal(t, ipconfig.StatusBound, res.Status)
		require.NotNil(t, res.Lease)
		assert.Zero(t, res.Lease.RenewIn())

		require.NoError(t, res.Lease.Release(ctx))
		assert.Equal(t, 1, nm.deactivated)
	})

	t.Run("deactivated", func(t *testing.T) {
		d, nm := newTestDriver()
		nm.active.next = []gonetworkmanager.NmActiveConnectionState{gonetworkmanager.NmActiveConnectionStateDeactivated}
		require.NoError(t, d.SetEssid(ctx, "cafe"))

		res, err := d.Configure(ctx, "wlan0", false)
		require.NoError(t, err)
		assert.Equal(t, ipconfig.StatusFailed, res.Status)
	})

	t.Run("timeout", func(t *testing.T) {
		d, _ := newTestDriver()
		d.ConnectionTimeout = 10 * time.Millisecond
		require.NoError(t, d.SetEssid(ctx, "cafe"))

		res, err := d.Configure(ctx, "wlan0", false)
		require.NoError(t, err)
		assert.Equal(t, ipconfig.StatusFailed, res.Status)
	})

	t.Run("no connection", func(t *testing.T) {
		d, _ := newTestDriver()
		res, err := d.Configure(ctx, "wlan0", false)
		require.NoError(t, err)
		assert.False(t, res.Bound())
	})
}
