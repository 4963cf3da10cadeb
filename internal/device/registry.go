package device

import (
	"net"
	"sync"

	"github.com/shazow/wifid/wifi"
)

type sessionKey struct {
	source  string
	keyType wifi.KeyType
}

// Registry holds the networks a device can see. It keeps a window of recent
// scan snapshots and a merged view of the two newest ones, so a network missed
// by a single scan does not flicker out of existence.
type Registry struct {
	mu sync.RWMutex

	depth      int
	maxQuality int
	known      wifi.KnownNetworks

	// snapshots[0] is the newest.
	snapshots []wifi.APList
	view      wifi.APList
	// history holds the two previous merged views, newest first.
	history [2]wifi.APList
	// keys supplied during this session, applied on top of known profiles.
	keys map[string]sessionKey
}

// NewRegistry returns an empty registry that retains depth snapshots.
func NewRegistry(depth int, known wifi.KnownNetworks) *Registry {
	if depth < 2 {
		depth = 2
	}
	if known == nil {
		known = wifi.StaticNetworks(nil)
	}
	return &Registry{
		depth: depth,
		known: known,
		keys:  map[string]sessionKey{},
	}
}

// SetMaxQuality sets the quality scale used when the driver does not report
// one per sample.
func (r *Registry) SetMaxQuality(q int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxQuality = q
}

func convert(raw []wifi.RawAP, maxQuality int) (wifi.APList, bool) {
	var snap wifi.APList
	hadHidden := false
	for _, rec := range raw {
		essid := wifi.NormalizeEssid(rec.Essid)
		if essid == "" && !wifi.ValidAddress(rec.Address) {
			continue
		}
		ap := wifi.NewAccessPoint(essid)
		ap.SetAddress(rec.Address)
		ap.SetMode(rec.Mode)
		ap.SetEncrypted(!rec.KeyDisabled)
		ap.SetStrength(wifi.QualityToPercent(rec.Quality, maxQuality))
		ap.SetFrequency(rec.Frequency)
		if essid == "" {
			hadHidden = true
		}
		snap = snap.Add(ap)
	}
	return snap, hadHidden
}

// Merge folds a scan into the registry and returns what changed compared to
// the scans that fell out of the merged view: the third newest snapshot and
// the one dropped from the window. Artificial entries of the previous view
// named associatedEssid are kept even if the scan does not include them.
func (r *Registry) Merge(raw []wifi.RawAP, associatedEssid string) wifi.Diff {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, hadHidden := convert(raw, r.maxQuality)

	var dropped wifi.APList
	r.snapshots = append([]wifi.APList{snap}, r.snapshots...)
	if len(r.snapshots) > r.depth {
		dropped = r.snapshots[r.depth]
		r.snapshots = r.snapshots[:r.depth]
	}
	var older wifi.APList
	if len(r.snapshots) > 2 {
		older = r.snapshots[2]
	}
	base := wifi.Combine(older, dropped)

	prev := r.view
	var view wifi.APList
	if len(r.snapshots) > 1 {
		view = wifi.Combine(r.snapshots[0], r.snapshots[1]).Clone()
	} else {
		view = r.snapshots[0].Clone()
	}

	if hadHidden {
		wifi.CopyEssidsByAddress(view, r.history[0])
		wifi.CopyEssidsByAddress(view, r.history[1])
		wifi.CopyEssidsFromKnown(view, r.known.List())
		// Recovered names may collide with a named entry of the same scan.
		var dedup wifi.APList
		for _, ap := range view {
			dedup = dedup.Add(ap)
		}
		view = dedup
	}

	r.applyKnown(view)

	if associatedEssid != "" {
		for _, ap := range prev {
			if ap.Artificial() && ap.Essid() == associatedEssid && view.ByEssid(associatedEssid) == nil {
				view = append(view, ap)
				base = append(base, ap)
			}
		}
	}

	// Snapshots keep the names the scans reported. Name hidden entries the
	// same way the views did so a recovered network is not announced again.
	base = base.Clone()
	wifi.CopyEssidsByAddress(base, view)
	wifi.CopyEssidsByAddress(base, r.history[0])
	wifi.CopyEssidsByAddress(base, r.history[1])
	base = wifi.Combine(base)

	r.history[1] = r.history[0]
	r.history[0] = view
	r.view = view

	return wifi.DiffLists(base, view)
}

func (r *Registry) applyKnown(view wifi.APList) {
	wifi.CopyProperties(view, r.known)
	for essid, k := range r.keys {
		if ap := view.ByEssid(essid); ap != nil {
			ap.SetKeySource(k.source, k.keyType)
		}
	}
}

// View returns a copy of the merged list. The entries are shared.
func (r *Registry) View() wifi.APList {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(wifi.APList(nil), r.view...)
}

// Len is the number of networks in the merged view.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.view)
}

// ByEssid looks up a network by exact essid, or returns nil.
func (r *Registry) ByEssid(essid string) *wifi.AccessPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.ByEssid(essid)
}

// ByAddress looks up a network by access point address, or returns nil.
func (r *Registry) ByAddress(addr net.HardwareAddr) *wifi.AccessPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.ByAddress(addr)
}

// Add inserts ap into the merged view if no entry for the network exists.
func (r *Registry) Add(ap *wifi.AccessPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view.ByEssid(ap.Essid()) != nil {
		return
	}
	r.view = append(r.view, ap)
	r.history[0] = r.view
}

// Replace drops all history and makes list the only snapshot and view.
func (r *Registry) Replace(list wifi.APList) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = []wifi.APList{list}
	r.view = append(wifi.APList(nil), list...)
	r.history = [2]wifi.APList{r.view, nil}
}

// Clear drops the merged view and all snapshots.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = nil
	r.view = nil
	r.history = [2]wifi.APList{}
}

// SetKey remembers a key for essid for the rest of the session and applies it
// to the current entry. An empty source forgets it.
func (r *Registry) SetKey(essid, source string, keyType wifi.KeyType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source == "" {
		delete(r.keys, essid)
	} else {
		r.keys[essid] = sessionKey{source: source, keyType: keyType}
	}
	if ap := r.view.ByEssid(essid); ap != nil {
		ap.SetKeySource(source, keyType)
	}
}
