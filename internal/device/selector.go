package device

import (
	"time"

	"github.com/shazow/wifid/wifi"
)

// Select picks the network to join from view. Only networks with a known
// profile are candidates, and networks on the invalid list are skipped. The
// most recently used trusted network wins over any untrusted one; signal
// strength is not considered. The chosen entry gets its saved key from the
// profile.
func Select(view wifi.APList, invalid *wifi.InvalidList, known wifi.KnownNetworks) *wifi.AccessPoint {
	if known == nil {
		return nil
	}

	var (
		trusted, untrusted     *wifi.AccessPoint
		trustedKN, untrustedKN wifi.KnownNetwork
		trustedTS, untrustedTS time.Time
	)
	for _, ap := range view {
		essid := ap.Essid()
		if essid == "" || ap.Invalid() || invalid.Contains(essid) {
			continue
		}
		kn, ok := known.Lookup(essid)
		if !ok || kn.Invalid {
			continue
		}
		if kn.Trusted {
			if trusted == nil || kn.Timestamp.After(trustedTS) {
				trusted, trustedKN, trustedTS = ap, kn, kn.Timestamp
			}
			continue
		}
		if untrusted == nil || kn.Timestamp.After(untrustedTS) {
			untrusted, untrustedKN, untrustedTS = ap, kn, kn.Timestamp
		}
	}

	switch {
	case trusted != nil:
		mergeKey(trusted, trustedKN)
		return trusted
	case untrusted != nil:
		mergeKey(untrusted, untrustedKN)
		return untrusted
	}
	return nil
}

func mergeKey(ap *wifi.AccessPoint, kn wifi.KnownNetwork) {
	if kn.Key != "" && !ap.HasKey() {
		ap.SetKeySource(kn.Key, kn.KeyType)
	}
	ap.SetTrusted(kn.Trusted)
	ap.SetTimestamp(kn.Timestamp)
}
