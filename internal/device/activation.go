package device

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
)

var errIllegalTransition = errors.New("illegal state transition")

// ActivationBegin starts an activation worker. It is a no-op if one is
// already running.
func (d *Device) ActivationBegin() error {
	if d.caps.Support == wifi.SupportUnsupported {
		return fmt.Errorf("%s: %w", d.iface, wifi.ErrUnsupportedDriver)
	}

	d.ctlMu.Lock()
	defer d.ctlMu.Unlock()

	if d.IsActivating() {
		return nil
	}
	// An active device may still run a worker renewing its lease.
	if err := d.stopTaskLocked(); err != nil {
		return err
	}

	if !d.transition(StateStarting) {
		return fmt.Errorf("%s: cannot activate from %s: %w", d.iface, d.State(), errIllegalTransition)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	d.stateMu.Lock()
	d.task = t
	d.stateMu.Unlock()
	d.cancelRequested.Store(false)

	d.logger.Info("activation started")
	go d.activate(ctx, t)
	return nil
}

// ActivationCancel stops the activation worker and waits for it to finish,
// up to Config.CancelTimeout.
func (d *Device) ActivationCancel() error {
	d.ctlMu.Lock()
	defer d.ctlMu.Unlock()
	return d.stopTaskLocked()
}

func (d *Device) stopTaskLocked() error {
	d.stateMu.Lock()
	t := d.task
	d.stateMu.Unlock()
	if t == nil {
		return nil
	}
	if t.finished() {
		t.cancel()
		return nil
	}

	d.cancelRequested.Store(true)
	d.transition(StateCancelling)
	t.cancel()

	if err := d.join(t); err != nil {
		return err
	}
	d.logger.Info("activation cancelled")
	return nil
}

func (d *Device) join(t *task) error {
	timer := time.NewTimer(d.cfg.CancelTimeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: %w", d.iface, wifi.ErrCancelTimeout)
	}
}

// cancelled reports whether the worker should unwind.
func (d *Device) cancelled(ctx context.Context) error {
	if d.cancelRequested.Load() {
		return context.Canceled
	}
	return ctx.Err()
}

// enter moves the worker into state s, unless it was cancelled.
func (d *Device) enter(ctx context.Context, s State) error {
	if err := d.cancelled(ctx); err != nil {
		return err
	}
	if !d.transition(s) {
		if err := d.cancelled(ctx); err != nil {
			return err
		}
		return fmt.Errorf("%s to %s: %w", d.State(), s, errIllegalTransition)
	}
	return nil
}

func (d *Device) activate(ctx context.Context, t *task) {
	defer close(t.done)
	defer t.cancel()

	err := d.run(ctx)
	switch {
	case d.cancelled(ctx) != nil:
		d.transition(StateCancelling)
		d.transition(StateIdle)
	case err != nil:
		d.logger.Warn("activation failed", "error", err)
		essid := ""
		if best := d.BestAP(); best != nil {
			essid = best.Essid()
		}
		d.transition(StateFailed)
		d.publish(EventActivationFailed, essid)
	}
}

// run is the activation state machine. It returns once the device is active
// and needs no lease renewal, or when cancelled or failed.
func (d *Device) run(ctx context.Context) error {
	d.hw("set up", d.driver.SetUp(ctx, true))

	for {
		ap, err := d.waitForBestAP(ctx)
		if err != nil {
			return err
		}
		essid := ap.Essid()
		d.logger.Info("activating", "essid", essid, "mode", ap.Mode(), "encrypted", ap.Encrypted())
		d.publish(EventActivating, essid)

		var res ipconfig.Result
		var ok bool
		switch {
		case ap.Mode() == wifi.ModeAdHoc && ap.UserCreated():
			res, err = d.createAdHoc(ctx, ap)
			if err != nil {
				return err
			}
			ok = true
		case ap.NeedsKey():
			if err := d.requestKey(ctx, ap); err != nil {
				return err
			}
			d.UpdateBestAP()
			continue
		case !ap.Encrypted():
			res, ok, err = d.activateUnencrypted(ctx, ap)
		default:
			res, ok, err = d.activateEncrypted(ctx, ap)
		}
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := d.enter(ctx, StateActive); err != nil {
			return err
		}
		d.stateMu.Lock()
		d.lease = res.Lease
		d.stateMu.Unlock()
		d.keyMu.Lock()
		d.promptEssid, d.promptCount = "", 0
		d.keyMu.Unlock()

		d.logger.Info("activated", "essid", essid)
		d.publish(EventActivated, essid)
		return d.renew(ctx, res.Lease)
	}
}

// waitForBestAP blocks until a best network is selected.
func (d *Device) waitForBestAP(ctx context.Context) (*wifi.AccessPoint, error) {
	if err := d.enter(ctx, StateAwaitingBestAP); err != nil {
		return nil, err
	}
	for {
		if ap := d.BestAP(); ap != nil {
			return ap, d.cancelled(ctx)
		}
		timer := time.NewTimer(d.cfg.BestAPPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-d.bestChanged:
		case <-timer.C:
			d.UpdateBestAP()
		}
		timer.Stop()
	}
}

// requestKey asks for a key for ap and waits until one is supplied or the
// prompt is cancelled.
func (d *Device) requestKey(ctx context.Context, ap *wifi.AccessPoint) error {
	if err := d.enter(ctx, StateNegotiatingKey); err != nil {
		return err
	}
	essid := ap.Essid()

	d.keyMu.Lock()
	if essid != d.promptEssid {
		d.promptEssid, d.promptCount = essid, 0
	}
	d.promptCount++
	attempt := d.promptCount
	d.pendingEssid = essid
	select {
	case <-d.keyCh:
	default:
	}
	d.keyMu.Unlock()

	d.logger.Info("requesting key", "essid", essid, "attempt", attempt)
	d.notifier.Publish(Event{
		ID:      uuid.New(),
		Type:    EventKeyRequested,
		Time:    time.Now(),
		Iface:   d.iface,
		Essid:   essid,
		State:   StateNegotiatingKey,
		Attempt: attempt,
	})
	d.prompter.RequestKey(d.iface, essid, attempt)

	select {
	case <-ctx.Done():
		d.keyMu.Lock()
		d.pendingEssid = ""
		d.keyMu.Unlock()
		return ctx.Err()
	case <-d.keyCh:
	}
	return d.cancelled(ctx)
}

// SupplyKey delivers a key for essid, usually in answer to a key request.
// wifi.CancelKey marks the network invalid instead. It reports whether the
// key was taken for the current best network.
func (d *Device) SupplyKey(essid, key string, keyType wifi.KeyType) bool {
	if essid == "" {
		return false
	}

	if key == wifi.CancelKey {
		ap := d.registry.ByEssid(essid)
		if best := d.BestAP(); ap == nil && best != nil && best.Essid() == essid {
			ap = best
		}
		d.invalidate(ap)
		d.wakeKeyWaiter(essid)
		return true
	}

	if _, err := wifi.HashKey(essid, key, keyType); err != nil || key == "" {
		d.logger.Warn("rejected key", "essid", essid, "error", err)
		return false
	}

	d.registry.SetKey(essid, key, keyType)
	consumed := false
	if best := d.BestAP(); best != nil && best.Essid() == essid {
		best.SetKeySource(key, keyType)
		consumed = true
	}
	d.wakeKeyWaiter(essid)
	return consumed
}

func (d *Device) wakeKeyWaiter(essid string) {
	d.keyMu.Lock()
	defer d.keyMu.Unlock()
	if d.pendingEssid != essid {
		return
	}
	d.pendingEssid = ""
	select {
	case d.keyCh <- struct{}{}:
	default:
	}
}

// PendingKey returns the essid a key is being waited for, if any.
func (d *Device) PendingKey() string {
	d.keyMu.Lock()
	defer d.keyMu.Unlock()
	return d.pendingEssid
}

// activateUnencrypted joins an open network. A network that gives no link or
// no address is invalidated.
func (d *Device) activateUnencrypted(ctx context.Context, ap *wifi.AccessPoint) (ipconfig.Result, bool, error) {
	if err := d.enter(ctx, StateAssociating); err != nil {
		return ipconfig.Result{}, false, err
	}
	if err := d.setWirelessConfig(ctx, ap, "", wifi.AuthNone); err != nil {
		return ipconfig.Result{}, false, err
	}

	adhoc := ap.Mode() == wifi.ModeAdHoc
	if !adhoc && !d.LinkActive() {
		d.logger.Info("no link", "essid", ap.Essid())
		return d.giveUp(ctx, ap)
	}

	res, err := d.configureIP(ctx, adhoc)
	if err != nil {
		return res, false, err
	}
	if res.Bound() {
		return res, true, nil
	}
	return d.giveUp(ctx, ap)
}

// activateEncrypted tries shared key authentication, then open system. The
// last method tried decides the outcome: no link invalidates the network, a
// link without an address means the key is probably wrong and a new one is
// requested.
func (d *Device) activateEncrypted(ctx context.Context, ap *wifi.AccessPoint) (ipconfig.Result, bool, error) {
	essid := ap.Essid()
	adhoc := ap.Mode() == wifi.ModeAdHoc
	linked := false

	for _, auth := range []wifi.AuthMethod{wifi.AuthSharedKey, wifi.AuthOpenSystem} {
		if err := d.enter(ctx, StateAssociating); err != nil {
			return ipconfig.Result{}, false, err
		}
		key, err := ap.HashedKey()
		if err != nil {
			d.logger.Warn("unusable key", "essid", essid, "error", err)
			linked = true
			break
		}
		if err := d.setWirelessConfig(ctx, ap, key, auth); err != nil {
			return ipconfig.Result{}, false, err
		}

		linked = adhoc || d.LinkActive()
		if linked {
			res, err := d.configureIP(ctx, adhoc)
			if err != nil {
				return res, false, err
			}
			if res.Bound() {
				return res, true, nil
			}
			d.logger.Info("no address", "essid", essid, "auth", auth)
		} else {
			d.logger.Info("no link", "essid", essid, "auth", auth)
		}

		if auth == wifi.AuthSharedKey {
			d.publish(EventAuthFallback, essid)
		}
	}

	if !linked {
		return d.giveUp(ctx, ap)
	}

	// Probably a bad key: forget it and ask again.
	ap.SetKeySource("", wifi.KeyNone)
	d.registry.SetKey(essid, "", wifi.KeyNone)
	if err := d.requestKey(ctx, ap); err != nil {
		return ipconfig.Result{}, false, err
	}
	d.UpdateBestAP()
	return ipconfig.Result{}, false, nil
}

// giveUp invalidates ap and selects another network.
func (d *Device) giveUp(ctx context.Context, ap *wifi.AccessPoint) (ipconfig.Result, bool, error) {
	if err := d.cancelled(ctx); err != nil {
		return ipconfig.Result{}, false, err
	}
	d.invalidate(ap)
	d.UpdateBestAP()
	return ipconfig.Result{}, false, nil
}

func (d *Device) configureIP(ctx context.Context, autoOnly bool) (ipconfig.Result, error) {
	if err := d.enter(ctx, StateConfiguringIP); err != nil {
		return ipconfig.Result{}, err
	}
	res, err := d.ip.Configure(ctx, d.iface, autoOnly)
	if cerr := d.cancelled(ctx); cerr != nil {
		return ipconfig.Result{}, cerr
	}
	if err != nil {
		d.logger.Warn("ip configuration error", "error", err)
		res.Status = ipconfig.StatusFailed
	}
	d.logger.Debug("ip configuration", "status", res.Status, "auto", autoOnly)
	if !res.Bound() && !autoOnly {
		// Leave the radio idle so scanning keeps working.
		d.resetRadio(ctx)
	}
	return res, nil
}

// createAdHoc starts an ad-hoc network on a free 802.11b channel.
func (d *Device) createAdHoc(ctx context.Context, ap *wifi.AccessPoint) (ipconfig.Result, error) {
	if err := d.enter(ctx, StateAdHocCreate); err != nil {
		return ipconfig.Result{}, err
	}
	ap.SetFrequency(d.freeChannel())

	key, auth := "", wifi.AuthNone
	if ap.HasKey() {
		var err error
		if key, err = ap.HashedKey(); err != nil {
			return ipconfig.Result{}, fmt.Errorf("ad-hoc key: %w", err)
		}
		auth = wifi.AuthOpenSystem
	}
	d.logger.Info("creating ad-hoc network", "essid", ap.Essid(), "freq", ap.Frequency())
	if err := d.setWirelessConfig(ctx, ap, key, auth); err != nil {
		return ipconfig.Result{}, err
	}

	res, err := d.configureIP(ctx, true)
	if err != nil {
		return res, err
	}
	if !res.Bound() {
		return res, fmt.Errorf("ad-hoc network %q: no address: %w", ap.Essid(), wifi.ErrOperationFailed)
	}
	return res, nil
}

// freeChannel returns the frequency of the first 802.11b channel no visible
// network uses, or a random one if all are taken.
func (d *Device) freeChannel() uint {
	used := map[uint]bool{}
	for _, ap := range d.registry.View() {
		used[ap.Frequency()] = true
	}
	supported := func(f uint) bool {
		if len(d.caps.Frequencies) == 0 {
			return true
		}
		for _, s := range d.caps.Frequencies {
			if s == f {
				return true
			}
		}
		return false
	}

	var candidates []uint
	for ch := 1; ch <= 14; ch++ {
		f := wifi.ChannelToFrequency(ch)
		if !supported(f) {
			continue
		}
		if !used[f] {
			return f
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return wifi.ChannelToFrequency(1 + rand.IntN(11))
	}
	return candidates[rand.IntN(len(candidates))]
}

// setWirelessConfig programs the card for ap and waits for it to associate.
func (d *Device) setWirelessConfig(ctx context.Context, ap *wifi.AccessPoint, key string, auth wifi.AuthMethod) error {
	essid := ap.Essid()
	mode := ap.Mode()

	d.hw("set down", d.driver.SetUp(ctx, false))
	if err := sleep(ctx, d.cfg.BringDownPause); err != nil {
		return err
	}
	d.hw("set up", d.driver.SetUp(ctx, true))
	if err := sleep(ctx, d.cfg.BringUpPause); err != nil {
		return err
	}

	d.hw("set mode", d.driver.SetMode(ctx, wifi.ModeInfra))
	d.hw("set essid", d.driver.SetEssid(ctx, " "))
	d.hw("set mode", d.driver.SetMode(ctx, mode))
	d.hw("set bitrate", d.driver.SetBitrate(ctx, 0))
	if freq := ap.Frequency(); freq > 0 && (ap.UserCreated() || mode == wifi.ModeAdHoc) {
		d.hw("set frequency", d.driver.SetFrequency(ctx, freq))
	}

	d.hw("set key", d.driver.SetKey(ctx, "", wifi.AuthNone))
	if key != "" {
		d.hw("set key", d.driver.SetKey(ctx, key, auth))
	}
	if err := d.cancelled(ctx); err != nil {
		return err
	}
	d.hw("set essid", d.driver.SetEssid(ctx, essid))

	if err := sleep(ctx, d.associationPause()); err != nil {
		return err
	}

	if mode == wifi.ModeAdHoc {
		if rate, err := d.driver.Bitrate(ctx); d.hw("bitrate", err) && rate <= 0 {
			d.hw("set bitrate", d.driver.SetBitrate(ctx, 11000))
		}
	}
	d.RefreshLink(ctx)
	return d.cancelled(ctx)
}

// renew keeps the lease alive until the worker is cancelled.
func (d *Device) renew(ctx context.Context, lease ipconfig.Lease) error {
	if lease == nil {
		return nil
	}
	for {
		in := lease.RenewIn()
		if in <= 0 {
			return nil
		}
		if err := sleep(ctx, in); err != nil {
			return err
		}
		if err := lease.Renew(ctx); err != nil {
			if cerr := d.cancelled(ctx); cerr != nil {
				return cerr
			}
			d.publish(EventNoLongerActive, d.activeEssid())
			return fmt.Errorf("renewing lease: %w", err)
		}
		d.logger.Debug("lease renewed")
	}
}

func (d *Device) activeEssid() string {
	if best := d.BestAP(); best != nil {
		return best.Essid()
	}
	return ""
}
