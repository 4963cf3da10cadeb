package device

import (
	"context"
	"net"

	"github.com/shazow/wifid/wifi"
)

// Deactivate stops any activation, releases the address and disassociates.
func (d *Device) Deactivate() error {
	d.ctlMu.Lock()
	defer d.ctlMu.Unlock()

	wasUp := d.State() == StateActive || d.IsActivating()
	err := d.stopTaskLocked()

	ctx := context.Background()
	d.stateMu.Lock()
	lease := d.lease
	d.lease = nil
	d.stateMu.Unlock()
	if lease != nil {
		if rerr := lease.Release(ctx); rerr != nil {
			d.logger.Warn("releasing lease", "error", rerr)
		}
	}
	if d.State() == StateActive || d.State() == StateFailed {
		d.transition(StateIdle)
	}

	if wasUp {
		d.logger.Info("deactivated")
		d.publish(EventNoLongerActive, d.activeEssid())
	}

	d.hw("set essid", d.driver.SetEssid(ctx, ""))
	d.hw("set key", d.driver.SetKey(ctx, "", wifi.AuthNone))
	d.hw("set mode", d.driver.SetMode(ctx, wifi.ModeInfra))

	d.linkMu.Lock()
	d.linkActive = false
	d.linkMu.Unlock()
	return err
}

// NetworkExists probes for essid by trying to associate with it. It returns
// the access point address and whether the network looked encrypted.
func (d *Device) NetworkExists(ctx context.Context, essid string) (net.HardwareAddr, bool, bool) {
	d.hw("set up", d.driver.SetUp(ctx, true))
	if err := sleep(ctx, d.cfg.BringDownPause); err != nil {
		return nil, false, false
	}

	ap := d.registry.ByEssid(essid)
	if ap != nil && ap.Mode() == wifi.ModeAdHoc {
		return ap.Address(), ap.Encrypted(), true
	}

	auths := []wifi.AuthMethod{wifi.AuthSharedKey, wifi.AuthOpenSystem, wifi.AuthNone}
	if ap != nil && !ap.Encrypted() {
		auths = []wifi.AuthMethod{wifi.AuthNone, wifi.AuthSharedKey, wifi.AuthOpenSystem}
	}
	key := wifi.DummyKey
	if ap != nil && ap.HasKey() {
		if k, err := ap.HashedKey(); err == nil {
			key = k
		}
	}

	d.hw("set mode", d.driver.SetMode(ctx, wifi.ModeInfra))
	for _, auth := range auths {
		k := key
		if auth == wifi.AuthNone {
			k = ""
		}
		d.hw("set key", d.driver.SetKey(ctx, k, auth))
		d.hw("set essid", d.driver.SetEssid(ctx, essid))
		if err := sleep(ctx, d.associationPause()); err != nil {
			return nil, false, false
		}

		associated, err := d.driver.Associated(ctx)
		d.hw("associated", err)
		addr, err := d.driver.APAddress(ctx)
		d.hw("ap address", err)
		if !associated && !wifi.ValidAddress(addr) {
			continue
		}

		encrypted := auth != wifi.AuthNone
		if ap != nil {
			encrypted = ap.Encrypted()
		}
		d.logger.Debug("network exists", "essid", essid, "address", addr, "auth", auth)
		return addr, encrypted, true
	}
	return nil, false, false
}

// FindAndUseEssid forces the device onto essid, even if no scan has seen it.
// The network becomes the frozen best network. key is applied if it is a
// usable key for the network.
func (d *Device) FindAndUseEssid(ctx context.Context, essid, key string, keyType wifi.KeyType) bool {
	essid = wifi.NormalizeEssid(essid)
	if essid == "" {
		return false
	}

	if err := d.Deactivate(); err != nil {
		d.logger.Warn("deactivating", "error", err)
	}
	if err := sleep(ctx, d.cfg.FindEssidSettle); err != nil {
		return false
	}

	// Keep scans off the radio while probing.
	d.scanMu.Lock()
	var (
		addr      net.HardwareAddr
		encrypted bool
		found     bool
	)
	for i := 0; i < d.cfg.FindEssidAttempts && !found; i++ {
		addr, encrypted, found = d.NetworkExists(ctx, essid)
	}
	d.scanMu.Unlock()
	if !found {
		d.logger.Info("network not found", "essid", essid)
		return false
	}

	ap := d.registry.ByEssid(essid)
	if ap == nil && wifi.ValidAddress(addr) {
		if ap = d.registry.ByAddress(addr); ap != nil {
			ap.SetEssid(essid)
		}
	}
	if ap == nil {
		ap = wifi.NewAccessPoint(essid)
		ap.SetAddress(addr)
		ap.SetEncrypted(encrypted)
		ap.SetArtificial(true)
		d.registry.Add(ap)
	}

	if kn, ok := d.known.Lookup(essid); ok {
		kn.ApplyTo(ap)
	}
	if key != "" {
		if _, err := wifi.HashKey(essid, key, keyType); err == nil {
			ap.SetKeySource(key, keyType)
			d.registry.SetKey(essid, key, keyType)
		} else {
			d.logger.Warn("ignoring unusable key", "essid", essid, "error", err)
		}
	}
	// The user asked for this network, so give it another chance.
	ap.SetInvalid(false)
	d.invalid.Remove(essid)

	d.SetBestAP(ap)
	d.Freeze()
	if err := d.ActivationCancel(); err != nil {
		d.logger.Warn("cancelling activation", "error", err)
	}
	d.logger.Info("using network", "essid", essid, "artificial", ap.Artificial())
	return true
}
