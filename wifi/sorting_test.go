package wifi

import (
	"reflect"
	"testing"
	"time"
)

func ap(essid string, strength int) *AccessPoint {
	a := NewAccessPoint(essid)
	a.SetStrength(strength)
	return a
}

func TestSortAccessPoints(t *testing.T) {
	tests := []struct {
		name     string
		aps      APList
		expected []string
	}{
		{
			name:     "Sort by strength",
			aps:      APList{ap("Weak", 10), ap("Strong", 90)},
			expected: []string{"Strong", "Weak"},
		},
		{
			name:     "Unknown strength last",
			aps:      APList{ap("Unknown", -1), ap("Weak", 10)},
			expected: []string{"Weak", "Unknown"},
		},
		{
			name:     "Hidden last",
			aps:      APList{ap("", 99), ap("Named", 5)},
			expected: []string{"Named", ""},
		},
		{
			name:     "Fallback to essid",
			aps:      APList{ap("b", 50), ap("a", 50), ap("c", 50)},
			expected: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortAccessPoints(tt.aps)
			var got []string
			for _, a := range tt.aps {
				got = append(got, a.Essid())
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSortKnownNetworks(t *testing.T) {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	twoDaysAgo := now.Add(-48 * time.Hour)

	known := []KnownNetwork{
		{Essid: "Never"},
		{Essid: "TwoDaysAgo", Timestamp: twoDaysAgo},
		{Essid: "Yesterday", Timestamp: yesterday},
		{Essid: "AlsoNever"},
	}
	SortKnownNetworks(known)

	var got []string
	for _, kn := range known {
		got = append(got, kn.Essid)
	}
	expected := []string{"Yesterday", "TwoDaysAgo", "AlsoNever", "Never"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %v, want %v", got, expected)
	}
}
