package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifid/internal/dbusapi"
	"github.com/shazow/wifid/internal/device"
	"github.com/shazow/wifid/internal/profiles"
	"github.com/shazow/wifid/wifi"
	wifimock "github.com/shazow/wifid/wifi/mock"
)

func init() {
	wifimock.DefaultActionSleep = 0
}

func fastConfig() device.Config {
	return device.Config{
		BringDownPause:   time.Millisecond,
		BringUpPause:     time.Millisecond,
		AssociationPause: time.Millisecond,
		ScanSettle:       time.Millisecond,
		BestAPPoll:       5 * time.Millisecond,
		FindEssidSettle:  time.Millisecond,
	}
}

type fakeController struct {
	used     []string
	supplied []string
	keyTypes []wifi.KeyType
	found    bool
	accepted bool
	status   dbusapi.Status
	networks []dbusapi.Network
}

func (c *fakeController) FindAndUseEssid(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error) {
	c.used = append(c.used, essid)
	c.keyTypes = append(c.keyTypes, keyType)
	return c.found, nil
}

func (c *fakeController) SupplyKey(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error) {
	c.supplied = append(c.supplied, key)
	c.keyTypes = append(c.keyTypes, keyType)
	return c.accepted, nil
}

func (c *fakeController) Status(ctx context.Context, iface string) (dbusapi.Status, error) {
	return c.status, nil
}

func (c *fakeController) Networks(ctx context.Context, iface string) ([]dbusapi.Network, error) {
	return c.networks, nil
}

func TestRunList(t *testing.T) {
	var buf bytes.Buffer
	drv := wifimock.New("wlan0")
	err := runList(context.Background(), &buf, drv, wifi.StaticNetworks{{Essid: "green"}}, fastConfig(), nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var green, bay string
	for _, l := range lines {
		switch strings.Fields(l)[0] {
		case "green":
			green = l
		case "bay":
			bay = l
		}
	}
	assert.Contains(t, green, "70:37:03:70:37:03")
	assert.Contains(t, green, "best")
	assert.Contains(t, bay, "secure")
	assert.NotContains(t, bay, "best")
}

func TestRunNetworks(t *testing.T) {
	var buf bytes.Buffer
	c := &fakeController{networks: []dbusapi.Network{
		{Essid: "cafe", Address: "00:11:22:33:44:55", Strength: 80, Best: true},
		{Essid: "", Address: "00:11:22:33:44:66", Strength: 40, Encrypted: true, Mode: "ad-hoc"},
	}}
	require.NoError(t, runNetworks(context.Background(), &buf, c, ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^cafe\s+00:11:22:33:44:55\s+80%, best$`, lines[0])
	assert.Regexp(t, `^<hidden>\s+00:11:22:33:44:66\s+40%, secure, ad-hoc$`, lines[1])
}

func TestRunStatus(t *testing.T) {
	var buf bytes.Buffer
	c := &fakeController{status: dbusapi.Status{Iface: "wlan0", State: "active", Essid: "cafe", Strength: 72, Link: true}}
	require.NoError(t, runStatus(context.Background(), &buf, c, ""))

	out := buf.String()
	assert.Contains(t, out, "Interface: wlan0\n")
	assert.Contains(t, out, "State: active\n")
	assert.Contains(t, out, "Network: cafe\n")
	assert.Contains(t, out, "Strength: 72%\n")
	assert.NotContains(t, out, "Waiting for key")

	buf.Reset()
	c.status = dbusapi.Status{Iface: "wlan0", State: "key-requested", Strength: -1, Pending: "office"}
	require.NoError(t, runStatus(context.Background(), &buf, c, ""))
	assert.NotContains(t, buf.String(), "Strength")
	assert.Contains(t, buf.String(), "Waiting for key: office\n")
}

func TestRunUse(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{found: true}
		require.NoError(t, runUse(ctx, &buf, c, "", "cafe", "", ""))
		assert.Equal(t, []string{"cafe"}, c.used)
		assert.Equal(t, []wifi.KeyType{wifi.KeyNone}, c.keyTypes)
		assert.Equal(t, "Using cafe\n", buf.String())
	})

	t.Run("key defaults to wpa", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{found: true}
		require.NoError(t, runUse(ctx, &buf, c, "", "home", "correct horse", ""))
		assert.Equal(t, []wifi.KeyType{wifi.KeyWPAPassphrase}, c.keyTypes)
	})

	t.Run("not found", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{}
		assert.ErrorIs(t, runUse(ctx, &buf, c, "", "cafe", "", ""), wifi.ErrNotFound)
	})

	t.Run("bad key", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{found: true}
		assert.ErrorIs(t, runUse(ctx, &buf, c, "", "office", "xyz", "hex"), wifi.ErrInvalidArgument)
		assert.Empty(t, c.used)
	})

	t.Run("no essid", func(t *testing.T) {
		var buf bytes.Buffer
		assert.ErrorIs(t, runUse(ctx, &buf, &fakeController{}, "", "", "", ""), wifi.ErrInvalidArgument)
	})
}

func TestRunKey(t *testing.T) {
	ctx := context.Background()

	t.Run("supplied", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{accepted: true}
		require.NoError(t, runKey(ctx, &buf, c, "", "office", "0123456789", "hex", false))
		assert.Equal(t, []string{"0123456789"}, c.supplied)
		assert.Equal(t, []wifi.KeyType{wifi.KeyHex}, c.keyTypes)
	})

	t.Run("cancel", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{accepted: true}
		require.NoError(t, runKey(ctx, &buf, c, "", "office", "", "hex", true))
		assert.Equal(t, []string{wifi.CancelKey}, c.supplied)
	})

	t.Run("not requested", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{}
		assert.ErrorIs(t, runKey(ctx, &buf, c, "", "office", "0123456789", "hex", false), wifi.ErrNotAvailable)
	})

	t.Run("missing key", func(t *testing.T) {
		var buf bytes.Buffer
		c := &fakeController{accepted: true}
		assert.ErrorIs(t, runKey(ctx, &buf, c, "", "office", "", "hex", false), wifi.ErrInvalidArgument)
		assert.Empty(t, c.supplied)
	})
}

func newStore(t *testing.T) profiles.Store {
	t.Helper()
	store, err := profiles.Open(filepath.Join(t.TempDir(), "profiles.toml"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunKnown(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(wifi.KnownNetwork{Essid: "old", Timestamp: time.Now().Add(-72 * time.Hour)}))
	require.NoError(t, store.Save(wifi.KnownNetwork{Essid: "office", Key: "0123456789", KeyType: wifi.KeyHex, Trusted: true, Timestamp: time.Now().Add(-30 * time.Minute)}))
	require.NoError(t, store.Save(wifi.KnownNetwork{Essid: "fresh"}))

	var buf bytes.Buffer
	require.NoError(t, runKnown(&buf, store))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^office\s+hex, trusted\s+last used 30 minutes ago$`, lines[0])
	assert.Regexp(t, `^old\s+last used 3 days ago$`, lines[1])
	assert.Regexp(t, `^fresh\s+never used$`, lines[2])
}

func TestRunQR(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(wifi.KnownNetwork{Essid: "home", Key: "correct horse", KeyType: wifi.KeyWPAPassphrase}))

	var buf bytes.Buffer
	require.NoError(t, runQR(&buf, store, "home", false))
	assert.NotEmpty(t, strings.TrimSpace(buf.String()))

	assert.ErrorIs(t, runQR(&buf, store, "cafe", false), wifi.ErrNotFound)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"wlan0", "wlan1"}, splitList(" wlan0, ,wlan1,"))
}

func TestOpenDriverMock(t *testing.T) {
	drv, ip, err := openDriver(context.Background(), driverMock, "", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMockIface, drv.Interface())
	assert.NotNil(t, ip)
}

func TestDaemon(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, daemonConfig{
		Ifaces:   []string{"wlan0", "wlan1"},
		Driver:   driverMock,
		Device:   fastConfig(),
		Profiles: filepath.Join(t.TempDir(), "profiles.db"),
		ScanFast: 10 * time.Millisecond,
		ScanSlow: 10 * time.Millisecond,
		Manual:   true,
	})
	require.NoError(t, err)
	defer d.Close()

	devs := d.manager.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "wlan0", devs[0].Interface())
	assert.Equal(t, "wlan1", devs[1].Interface())

	events := d.broker.Subscribe(ctx, 256)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-events:
				if e.Type == device.EventScanned {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonBadDriver(t *testing.T) {
	_, err := newDaemon(context.Background(), daemonConfig{
		Driver:   "bogus",
		Profiles: filepath.Join(t.TempDir(), "profiles.toml"),
	})
	assert.ErrorIs(t, err, wifi.ErrUnsupportedDriver)
}
