package wifi

import (
	"net"
)

// APList is an ordered collection of access points. Lists share their
// *AccessPoint values; use Clone to detach one.
type APList []*AccessPoint

// ByEssid returns the first access point named essid, or nil.
func (l APList) ByEssid(essid string) *AccessPoint {
	if essid == "" {
		return nil
	}
	for _, ap := range l {
		if ap.Essid() == essid {
			return ap
		}
	}
	return nil
}

// ByAddress returns the first access point with hardware address addr, or nil.
func (l APList) ByAddress(addr net.HardwareAddr) *AccessPoint {
	if !ValidAddress(addr) {
		return nil
	}
	for _, ap := range l {
		if ap.HasAddress(addr) {
			return ap
		}
	}
	return nil
}

// Essids returns the names in the list, skipping hidden entries.
func (l APList) Essids() []string {
	var out []string
	for _, ap := range l {
		if essid := ap.Essid(); essid != "" {
			out = append(out, essid)
		}
	}
	return out
}

// Clone returns a deep copy of the list.
func (l APList) Clone() APList {
	if l == nil {
		return nil
	}
	out := make(APList, len(l))
	for i, ap := range l {
		out[i] = ap.Clone()
	}
	return out
}

// match finds an entry that represents the same network as ap: same essid,
// or same valid hardware address.
func (l APList) match(ap *AccessPoint) *AccessPoint {
	if found := l.ByEssid(ap.Essid()); found != nil {
		return found
	}
	return l.ByAddress(ap.Address())
}

// Add appends ap unless an entry for the same network exists. If one does,
// the stronger of the two is kept in place.
func (l APList) Add(ap *AccessPoint) APList {
	for i, existing := range l {
		if existing != l.match(ap) {
			continue
		}
		if ap.Strength() > existing.Strength() {
			l[i] = ap
		}
		return l
	}
	return append(l, ap)
}

// Combine returns the union of lists. Lists are ordered freshest first; when
// a network appears more than once the freshest record wins.
func Combine(lists ...APList) APList {
	var out APList
	for _, l := range lists {
		for _, ap := range l {
			if out.match(ap) == nil {
				out = append(out, ap)
			}
		}
	}
	return out
}

// CopyEssidsByAddress fills in the essid of hidden entries in dst from
// entries in src with the same hardware address.
func CopyEssidsByAddress(dst, src APList) {
	for _, ap := range dst {
		if !ap.Hidden() {
			continue
		}
		if found := src.ByAddress(ap.Address()); found != nil && !found.Hidden() {
			ap.SetEssid(found.Essid())
		}
	}
}

// CopyEssidsFromKnown fills in the essid of hidden entries in dst from known
// networks that remember their address.
func CopyEssidsFromKnown(dst APList, known []KnownNetwork) {
	for _, ap := range dst {
		if !ap.Hidden() {
			continue
		}
		addr := ap.Address()
		if !ValidAddress(addr) {
			continue
		}
		for _, kn := range known {
			if kn.HasAddress(addr) {
				ap.SetEssid(kn.Essid)
				break
			}
		}
	}
}

// CopyProperties merges trust and credential metadata from known networks
// into matching entries of dst.
func CopyProperties(dst APList, known KnownNetworks) {
	if known == nil {
		return
	}
	for _, ap := range dst {
		kn, ok := known.Lookup(ap.Essid())
		if !ok {
			continue
		}
		kn.ApplyTo(ap)
	}
}

// Diff is the change between two views of the visible networks.
type Diff struct {
	Appeared        APList
	Disappeared     APList
	StrengthChanged APList
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Appeared) == 0 && len(d.Disappeared) == 0 && len(d.StrengthChanged) == 0
}

// DiffLists compares old and new by essid. Hidden entries are ignored.
func DiffLists(old, new APList) Diff {
	var d Diff
	for _, ap := range old {
		if ap.Hidden() {
			continue
		}
		if new.ByEssid(ap.Essid()) == nil {
			d.Disappeared = append(d.Disappeared, ap)
		}
	}
	for _, ap := range new {
		if ap.Hidden() {
			continue
		}
		prev := old.ByEssid(ap.Essid())
		switch {
		case prev == nil:
			d.Appeared = append(d.Appeared, ap)
		case prev.Strength() != ap.Strength():
			d.StrengthChanged = append(d.StrengthChanged, ap)
		}
	}
	return d
}
