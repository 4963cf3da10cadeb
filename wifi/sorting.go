package wifi

import "sort"

// SortAccessPoints sorts a list in place for display.
// The sorting order is:
// 1. Named networks before hidden ones.
// 2. By signal strength (strongest first), unknown strength last.
// 3. Fallback to essid alphabetically.
func SortAccessPoints(aps APList) {
	sort.SliceStable(aps, func(i, j int) bool {
		a := aps[i]
		b := aps[j]

		if a.Hidden() != b.Hidden() {
			return !a.Hidden()
		}

		if a.Strength() != b.Strength() {
			return a.Strength() > b.Strength()
		}

		return a.Essid() < b.Essid()
	})
}

// SortKnownNetworks sorts profiles by last use, most recent first. Profiles
// that were never used go last, by essid.
func SortKnownNetworks(known []KnownNetwork) {
	sort.SliceStable(known, func(i, j int) bool {
		a := known[i]
		b := known[j]

		if a.Timestamp.IsZero() != b.Timestamp.IsZero() {
			return !a.Timestamp.IsZero()
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Essid < b.Essid
	})
}
