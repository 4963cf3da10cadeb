package device

import (
	"bytes"
	"context"
	"errors"

	"github.com/shazow/wifid/wifi"
)

// Scan refreshes the registry from the radio. It returns false without doing
// anything if a scan is already running or the device is busy associating.
func (d *Device) Scan(ctx context.Context) bool {
	if !d.scanMu.TryLock() {
		return false
	}
	defer d.scanMu.Unlock()

	if !d.State().scanAllowed() {
		return false
	}

	d.scanning.Store(true)
	defer d.scanning.Store(false)

	if !d.caps.CanScan() {
		if d.State() == StateActive {
			return false
		}
		return d.pseudoScan(ctx)
	}

	raw, err := d.hardwareScan(ctx)
	if err != nil {
		d.logger.Warn("scan failed", "error", err)
		return false
	}
	d.ProcessScanResults(raw)
	return true
}

// hardwareScan runs one scan in infrastructure mode and restores the radio
// settings afterwards.
func (d *Device) hardwareScan(ctx context.Context) ([]wifi.RawAP, error) {
	if up, err := d.driver.IsUp(ctx); d.hw("is up", err) && !up {
		d.hw("set up", d.driver.SetUp(ctx, true))
		if err := sleep(ctx, d.cfg.ScanSettle); err != nil {
			return nil, err
		}
	}

	mode, err := d.driver.Mode(ctx)
	d.hw("mode", err)
	freq, err := d.driver.Frequency(ctx)
	d.hw("frequency", err)
	rate, err := d.driver.Bitrate(ctx)
	d.hw("bitrate", err)

	if mode != wifi.ModeInfra {
		d.hw("set mode", d.driver.SetMode(ctx, wifi.ModeInfra))
	}

	raw, err := d.driver.Scan(ctx)
	if errors.Is(err, wifi.ErrScanNotReady) {
		d.logger.Debug("scan results not ready, retrying")
		if err := sleep(ctx, d.associationPause()/2); err != nil {
			return nil, err
		}
		raw, err = d.driver.Scan(ctx)
	}

	if mode != wifi.ModeInfra {
		d.hw("set mode", d.driver.SetMode(ctx, mode))
		if freq > 0 {
			d.hw("set frequency", d.driver.SetFrequency(ctx, freq))
		}
		d.hw("set bitrate", d.driver.SetBitrate(ctx, rate))
	}
	return raw, err
}

// ProcessScanResults merges raw scan results into the registry, publishes what
// changed and reselects the best network when the device is not busy with it.
func (d *Device) ProcessScanResults(raw []wifi.RawAP) {
	essid, err := d.driver.Essid(context.Background())
	d.hw("essid", err)

	diff := d.registry.Merge(raw, essid)
	for _, ap := range diff.Appeared {
		d.logger.Debug("network appeared", "essid", ap.Essid())
		d.publish(EventNetworkAppeared, ap.Essid())
	}
	for _, ap := range diff.Disappeared {
		d.logger.Debug("network disappeared", "essid", ap.Essid())
		d.publish(EventNetworkDisappeared, ap.Essid())
	}
	for _, ap := range diff.StrengthChanged {
		d.publish(EventStrengthChanged, ap.Essid())
	}
	d.publish(EventScanned, "")

	switch d.State() {
	case StateIdle, StateFailed, StateAwaitingBestAP:
		d.UpdateBestAP()
	case StateActive:
		best := d.BestAP()
		if best == nil || d.registry.ByEssid(best.Essid()) == nil || d.invalid.Contains(best.Essid()) {
			d.UpdateBestAP()
		}
	}
}

// pseudoScan finds a network on cards that cannot scan by joining each known
// network in turn until the access point address changes to a new valid one.
// That network becomes the only registry entry and the best network.
//
// This is brute force: the worst case takes the number of known networks
// times the association pause.
func (d *Device) pseudoScan(ctx context.Context) bool {
	d.hw("set up", d.driver.SetUp(ctx, true))
	prev, err := d.driver.APAddress(ctx)
	d.hw("ap address", err)

	known := d.known.List()
	wifi.SortKnownNetworks(known)
	for _, kn := range known {
		if kn.Essid == "" || kn.Invalid || d.invalid.Contains(kn.Essid) {
			continue
		}
		ap := wifi.NewAccessPoint(kn.Essid)
		kn.ApplyTo(ap)

		key, auth := "", wifi.AuthNone
		if ap.HasKey() {
			k, err := ap.HashedKey()
			if err != nil {
				continue
			}
			key, auth = k, wifi.AuthOpenSystem
		}

		d.hw("set mode", d.driver.SetMode(ctx, wifi.ModeInfra))
		d.hw("set key", d.driver.SetKey(ctx, key, auth))
		d.hw("set essid", d.driver.SetEssid(ctx, kn.Essid))
		if err := sleep(ctx, d.associationPause()); err != nil {
			return false
		}

		addr, err := d.driver.APAddress(ctx)
		if !d.hw("ap address", err) {
			continue
		}
		if wifi.ValidAddress(addr) && !bytes.Equal(addr, prev) {
			d.logger.Info("pseudo scan found network", "essid", kn.Essid, "address", addr)
			ap.SetAddress(addr)
			ap.SetEncrypted(key != "")
			d.registry.Replace(wifi.APList{ap})
			d.SetBestAP(ap)
			return true
		}
		prev = addr
	}

	d.registry.Replace(nil)
	d.UpdateBestAP()
	return true
}
