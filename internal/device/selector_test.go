package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifid/wifi"
)

func TestSelect(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	view := func(essids ...string) wifi.APList {
		var l wifi.APList
		for i, e := range essids {
			ap := wifi.NewAccessPoint(e)
			// Stronger signal never matters.
			ap.SetStrength(100 - i)
			l = append(l, ap)
		}
		return l
	}

	tests := []struct {
		name    string
		view    wifi.APList
		known   wifi.StaticNetworks
		invalid []string
		want    string
	}{
		{
			name:  "trusted beats newer untrusted",
			view:  view("untrusted", "trusted"),
			known: wifi.StaticNetworks{{Essid: "trusted", Trusted: true, Timestamp: t1}, {Essid: "untrusted", Timestamp: t2}},
			want:  "trusted",
		},
		{
			name:  "most recent untrusted",
			view:  view("old", "new"),
			known: wifi.StaticNetworks{{Essid: "old", Timestamp: t1}, {Essid: "new", Timestamp: t3}},
			want:  "new",
		},
		{
			name:  "most recent trusted",
			view:  view("a", "b", "c"),
			known: wifi.StaticNetworks{{Essid: "a", Trusted: true, Timestamp: t1}, {Essid: "b", Trusted: true, Timestamp: t3}, {Essid: "c", Timestamp: t3}},
			want:  "b",
		},
		{
			name:  "unknown networks are not candidates",
			view:  view("stranger"),
			known: wifi.StaticNetworks{{Essid: "home", Timestamp: t1}},
			want:  "",
		},
		{
			name:    "invalid networks are skipped",
			view:    view("a", "b"),
			known:   wifi.StaticNetworks{{Essid: "a", Trusted: true, Timestamp: t3}, {Essid: "b", Timestamp: t1}},
			invalid: []string{"a"},
			want:    "b",
		},
		{
			name:  "profile marked invalid",
			view:  view("a"),
			known: wifi.StaticNetworks{{Essid: "a", Invalid: true}},
			want:  "",
		},
		{
			name: "empty view",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			invalid := wifi.NewInvalidList()
			for _, e := range tc.invalid {
				invalid.Add(wifi.NewAccessPoint(e))
			}
			got := Select(tc.view, invalid, tc.known)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Essid())
		})
	}
}

func TestSelectMergesKey(t *testing.T) {
	ap := wifi.NewAccessPoint("home")
	ap.SetEncrypted(true)
	known := wifi.StaticNetworks{{Essid: "home", Trusted: true, Key: "0123456789", KeyType: wifi.KeyHex}}

	got := Select(wifi.APList{ap}, nil, known)
	require.Same(t, ap, got)
	assert.False(t, got.NeedsKey())
	assert.True(t, got.Trusted())
}
