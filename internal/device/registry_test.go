package device

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifid/wifi"
)

func hw(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	a, err := net.ParseMAC(s)
	require.NoError(t, err)
	return a
}

func raw(t *testing.T, essid, addr string, strength int, encrypted bool) wifi.RawAP {
	t.Helper()
	return wifi.RawAP{
		Essid:       essid,
		Address:     hw(t, addr),
		KeyDisabled: !encrypted,
		Quality:     wifi.Quality{Qual: strength, MaxQual: 100},
		Frequency:   2412,
	}
}

func TestMergeIdempotent(t *testing.T) {
	scan := []wifi.RawAP{
		raw(t, "home", "00:11:22:33:44:01", 70, false),
		raw(t, "office", "00:11:22:33:44:02", 40, true),
		raw(t, "", "00:11:22:33:44:03", 20, true),
	}

	once := NewRegistry(3, nil)
	once.Merge(scan, "")

	twice := NewRegistry(3, nil)
	twice.Merge(scan, "")
	twice.Merge(scan, "")

	require.Equal(t, once.Len(), twice.Len())
	for i, ap := range once.View() {
		other := twice.View()[i]
		assert.Equal(t, ap.Essid(), other.Essid())
		assert.Equal(t, ap.Address(), other.Address())
		assert.Equal(t, ap.Strength(), other.Strength())
	}

	// Once the window reaches back far enough nothing has changed.
	assert.True(t, twice.Merge(scan, "").Empty())
}

func TestMergeWindow(t *testing.T) {
	r := NewRegistry(3, nil)
	a := raw(t, "a", "00:11:22:33:44:01", 50, false)
	b := raw(t, "b", "00:11:22:33:44:02", 50, false)

	d := r.Merge([]wifi.RawAP{a, b}, "")
	assert.ElementsMatch(t, []string{"a", "b"}, d.Appeared.Essids())

	// b missed a single scan and is still visible.
	d = r.Merge([]wifi.RawAP{a}, "")
	assert.ElementsMatch(t, []string{"a", "b"}, r.View().Essids())
	assert.Empty(t, d.Disappeared)

	d = r.Merge([]wifi.RawAP{a}, "")
	assert.Equal(t, []string{"a"}, r.View().Essids())
	assert.Equal(t, []string{"b"}, d.Disappeared.Essids())
	assert.Empty(t, d.Appeared)
}

func TestMergeDiffAgainstOlderScans(t *testing.T) {
	r := NewRegistry(3, nil)
	var d wifi.Diff
	for i, essid := range []string{"a", "b", "c", "d"} {
		d = r.Merge([]wifi.RawAP{raw(t, essid, fmt.Sprintf("00:11:22:33:44:0%d", i+1), 50, false)}, "")
	}

	assert.ElementsMatch(t, []string{"c", "d"}, r.View().Essids())
	assert.ElementsMatch(t, []string{"c", "d"}, d.Appeared.Essids())
	assert.ElementsMatch(t, []string{"a", "b"}, d.Disappeared.Essids())
	assert.Empty(t, d.StrengthChanged)
}

func TestMergeFreshestWins(t *testing.T) {
	r := NewRegistry(3, nil)
	r.Merge([]wifi.RawAP{raw(t, "a", "00:11:22:33:44:01", 20, false)}, "")
	r.Merge([]wifi.RawAP{raw(t, "a", "00:11:22:33:44:01", 20, false)}, "")
	d := r.Merge([]wifi.RawAP{raw(t, "a", "00:11:22:33:44:01", 80, false)}, "")

	require.Equal(t, 1, r.Len())
	assert.Equal(t, 80, r.ByEssid("a").Strength())
	assert.Equal(t, []string{"a"}, d.StrengthChanged.Essids())
}

func TestMergeDuplicateKeepsStrongest(t *testing.T) {
	r := NewRegistry(3, nil)
	r.Merge([]wifi.RawAP{
		raw(t, "a", "00:11:22:33:44:01", 20, false),
		raw(t, "a", "00:11:22:33:44:09", 90, false),
	}, "")

	require.Equal(t, 1, r.Len())
	assert.Equal(t, 90, r.ByEssid("a").Strength())
}

func TestHiddenEssidRecovery(t *testing.T) {
	t.Run("from previous views", func(t *testing.T) {
		r := NewRegistry(3, nil)
		r.Merge([]wifi.RawAP{raw(t, "X", "00:11:22:33:44:01", 50, true)}, "")
		r.Merge([]wifi.RawAP{raw(t, "", "00:11:22:33:44:01", 50, true)}, "")
		r.Merge([]wifi.RawAP{raw(t, "<hidden>", "00:11:22:33:44:01", 50, true)}, "")

		require.Equal(t, 1, r.Len())
		assert.Equal(t, "X", r.ByAddress(hw(t, "00:11:22:33:44:01")).Essid())
	})

	t.Run("not announced again", func(t *testing.T) {
		r := NewRegistry(3, nil)
		r.Merge([]wifi.RawAP{raw(t, "X", "00:11:22:33:44:01", 50, true)}, "")
		r.Merge([]wifi.RawAP{raw(t, "", "00:11:22:33:44:01", 50, true)}, "")
		for i := 0; i < 3; i++ {
			d := r.Merge([]wifi.RawAP{raw(t, "", "00:11:22:33:44:01", 50, true)}, "")
			assert.True(t, d.Empty(), "merge %d: %+v", i, d)
		}
		assert.NotNil(t, r.ByEssid("X"))
	})

	t.Run("from known networks", func(t *testing.T) {
		known := wifi.StaticNetworks{{Essid: "X", Addresses: []string{"00:11:22:33:44:01"}}}
		r := NewRegistry(3, known)
		r.Merge([]wifi.RawAP{raw(t, "", "00:11:22:33:44:01", 50, true)}, "")

		assert.NotNil(t, r.ByEssid("X"))
	})

	t.Run("unknown stays hidden", func(t *testing.T) {
		r := NewRegistry(3, nil)
		d := r.Merge([]wifi.RawAP{raw(t, "", "00:11:22:33:44:01", 50, true)}, "")

		assert.Equal(t, 1, r.Len())
		assert.True(t, r.View()[0].Hidden())
		assert.True(t, d.Empty())
	})
}

func TestMergeSkipsUnidentifiable(t *testing.T) {
	r := NewRegistry(3, nil)
	r.Merge([]wifi.RawAP{{Essid: "", Address: net.HardwareAddr{0, 0, 0, 0, 0, 0}}}, "")
	assert.Equal(t, 0, r.Len())
}

func TestMergeCopiesKnownProperties(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	known := wifi.StaticNetworks{{Essid: "home", Trusted: true, Key: "secret", KeyType: wifi.KeyPassphrase, Timestamp: ts}}
	r := NewRegistry(3, known)
	r.Merge([]wifi.RawAP{raw(t, "home", "00:11:22:33:44:01", 50, true)}, "")

	ap := r.ByEssid("home")
	require.NotNil(t, ap)
	assert.True(t, ap.Trusted())
	assert.Equal(t, ts, ap.Timestamp())
	src, typ := ap.KeySource()
	assert.Equal(t, "secret", src)
	assert.Equal(t, wifi.KeyPassphrase, typ)
}

func TestArtificialCarryForward(t *testing.T) {
	r := NewRegistry(3, nil)
	other := raw(t, "other", "00:11:22:33:44:01", 50, false)
	r.Merge([]wifi.RawAP{other}, "")

	ap := wifi.NewAccessPoint("cisco")
	ap.SetArtificial(true)
	r.Add(ap)
	require.NotNil(t, r.ByEssid("cisco"))

	r.Merge([]wifi.RawAP{other}, "cisco")
	assert.Same(t, ap, r.ByEssid("cisco"))

	r.Merge([]wifi.RawAP{other}, "")
	assert.Nil(t, r.ByEssid("cisco"))
}

func TestRegistryLookupAndClear(t *testing.T) {
	r := NewRegistry(3, nil)
	assert.Nil(t, r.ByEssid("a"))
	assert.Nil(t, r.ByAddress(hw(t, "00:11:22:33:44:01")))

	r.Merge([]wifi.RawAP{raw(t, "a", "00:11:22:33:44:01", 50, false)}, "")
	assert.NotNil(t, r.ByEssid("a"))
	assert.Nil(t, r.ByEssid("A"), "lookups are case sensitive")
	assert.NotNil(t, r.ByAddress(hw(t, "00:11:22:33:44:01")))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.ByEssid("a"))
}

func TestSessionKeySurvivesMerge(t *testing.T) {
	r := NewRegistry(3, nil)
	scan := []wifi.RawAP{raw(t, "a", "00:11:22:33:44:01", 50, true)}
	r.Merge(scan, "")
	r.SetKey("a", "0123456789", wifi.KeyHex)
	r.Merge(scan, "")

	assert.True(t, r.ByEssid("a").HasKey())

	r.SetKey("a", "", wifi.KeyNone)
	r.Merge(scan, "")
	assert.False(t, r.ByEssid("a").HasKey())
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry(3, nil)
	r.Merge([]wifi.RawAP{raw(t, "a", "00:11:22:33:44:01", 50, false)}, "")
	r.Replace(wifi.APList{wifi.NewAccessPoint("b")})

	assert.Equal(t, []string{"b"}, r.View().Essids())
}
