package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifid/wifi"
)

func init() {
	DefaultActionSleep = 0
}

func findRaw(results []wifi.RawAP, essid string) *wifi.RawAP {
	for i := range results {
		if results[i].Essid == essid {
			return &results[i]
		}
	}
	return nil
}

func TestNew(t *testing.T) {
	d := New("wlan0")
	assert.Equal(t, "wlan0", d.Interface())

	caps, err := d.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.CanScan())
	assert.Equal(t, 11, caps.NumFrequencies)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	d := New("wlan0")

	results, err := d.Scan(ctx)
	require.NoError(t, err)

	for _, essid := range []string{"green", "bay", "packers", "rule"} {
		assert.NotNil(t, findRaw(results, essid), "missing %s", essid)
	}

	bay := findRaw(results, "bay")
	assert.False(t, bay.KeyDisabled)
	green := findRaw(results, "green")
	assert.True(t, green.KeyDisabled)
	assert.Equal(t, 59, wifi.QualityToPercent(green.Quality, 100))

	assert.Nil(t, findRaw(results, "HideYoKidsHideYoWiFi"))
	assert.NotNil(t, findRaw(results, ""), "hidden network should be reported without a name")
}

func TestScanNotReady(t *testing.T) {
	ctx := context.Background()
	d := New("wlan0")
	d.ScanNotReady = 1

	_, err := d.Scan(ctx)
	assert.ErrorIs(t, err, wifi.ErrScanNotReady)

	_, err = d.Scan(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, d.ScanCount())
}

func TestAssociation(t *testing.T) {
	ctx := context.Background()
	bay := "0123456789"

	tests := []struct {
		name       string
		network    Network
		key        string
		auth       wifi.AuthMethod
		associated bool
		accepted   bool
	}{
		{"open network", Network{Essid: "n"}, "", wifi.AuthNone, true, true},
		{"open network with key", Network{Essid: "n"}, "ffffffffff", wifi.AuthOpenSystem, false, false},
		{"shared key right", Network{Essid: "n", Key: bay}, bay, wifi.AuthSharedKey, true, true},
		{"shared key wrong", Network{Essid: "n", Key: bay}, "ffffffffff", wifi.AuthSharedKey, false, false},
		{"shared key refused", Network{Essid: "n", Key: bay, NoSharedKey: true}, bay, wifi.AuthSharedKey, false, false},
		{"open system wrong key", Network{Essid: "n", Key: bay}, "ffffffffff", wifi.AuthOpenSystem, true, false},
		{"open system right key", Network{Essid: "n", Key: bay}, bay, wifi.AuthOpenSystem, true, true},
		{"no key", Network{Essid: "n", Key: bay}, "", wifi.AuthNone, false, false},
		{"not in scan", Network{Essid: "n", NotInScan: true}, "", wifi.AuthNone, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := New("wlan0")
			d.SetNetworks(tc.network)
			require.NoError(t, d.SetUp(ctx, true))
			require.NoError(t, d.SetKey(ctx, tc.key, tc.auth))
			require.NoError(t, d.SetEssid(ctx, "n"))

			associated, err := d.Associated(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.associated, associated)
			assert.Equal(t, tc.accepted, d.KeyAccepted())
		})
	}
}

func TestAdHoc(t *testing.T) {
	ctx := context.Background()
	d := New("wlan0")
	require.NoError(t, d.SetUp(ctx, true))
	require.NoError(t, d.SetMode(ctx, wifi.ModeAdHoc))
	require.NoError(t, d.SetFrequency(ctx, 2412))
	require.NoError(t, d.SetEssid(ctx, "party"))

	associated, _ := d.Associated(ctx)
	assert.True(t, associated)
	addr, _ := d.APAddress(ctx)
	assert.True(t, wifi.ValidAddress(addr))

	again, _ := d.APAddress(ctx)
	assert.Equal(t, addr, again)
}

func TestStickyAddress(t *testing.T) {
	ctx := context.Background()
	d := New("wlan0")
	d.StickyAddress = true
	require.NoError(t, d.SetUp(ctx, true))
	require.NoError(t, d.SetEssid(ctx, "green"))

	first, _ := d.APAddress(ctx)
	require.True(t, wifi.ValidAddress(first))

	require.NoError(t, d.SetEssid(ctx, "nowhere"))
	associated, _ := d.Associated(ctx)
	assert.False(t, associated)
	stale, _ := d.APAddress(ctx)
	assert.Equal(t, first, stale)
}

func TestCalls(t *testing.T) {
	ctx := context.Background()
	d := New("wlan0")
	_ = d.SetKey(ctx, "", wifi.AuthNone)
	_ = d.SetKey(ctx, "abc", wifi.AuthSharedKey)
	_ = d.SetEssid(ctx, "green")

	keys := d.Calls("key")
	require.Len(t, keys, 2)
	assert.Equal(t, "key:none", keys[0].String())
	assert.Equal(t, "key:shared key", keys[1].String())
	assert.Len(t, d.Calls(""), 3)

	d.ResetCalls()
	assert.Empty(t, d.Calls(""))
}

func TestSetUpError(t *testing.T) {
	d := New("wlan0")
	d.SetUpError = wifi.ErrOperationFailed
	err := d.SetUp(context.Background(), true)
	assert.ErrorIs(t, err, wifi.ErrOperationFailed)
}
