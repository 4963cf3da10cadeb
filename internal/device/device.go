// Package device manages wireless interfaces: it tracks the networks each
// interface can see, picks the best one and drives the activation handshake
// on a worker goroutine.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
)

// Options are the collaborators of a Device. Nil fields get harmless
// defaults.
type Options struct {
	Config   Config
	Logger   *slog.Logger
	IP       ipconfig.Configurator
	Prompter KeyPrompter
	Notifier Notifier
	Known    wifi.KnownNetworks
	// Invalid is shared by all devices of a daemon.
	Invalid *wifi.InvalidList
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Device is one wireless interface.
type Device struct {
	iface    string
	driver   wifi.Driver
	caps     wifi.Capabilities
	cfg      Config
	logger   *slog.Logger
	ip       ipconfig.Configurator
	prompter KeyPrompter
	notifier Notifier
	known    wifi.KnownNetworks
	invalid  *wifi.InvalidList

	registry *Registry

	bestMu      sync.Mutex
	bestAP      *wifi.AccessPoint
	frozen      bool
	bestChanged chan struct{}

	// ctlMu serializes begin, cancel and deactivate. The worker never takes it.
	ctlMu           sync.Mutex
	stateMu         sync.Mutex
	state           State
	task            *task
	lease           ipconfig.Lease
	cancelRequested atomic.Bool

	keyMu        sync.Mutex
	keyCh        chan struct{}
	pendingEssid string
	promptEssid  string
	promptCount  int

	scanMu   sync.Mutex
	scanning atomic.Bool

	linkMu     sync.Mutex
	linkActive bool
	strength   int
	strikes    int
}

// New creates a Device for driver.
func New(ctx context.Context, driver wifi.Driver, opts Options) (*Device, error) {
	if driver == nil || driver.Interface() == "" {
		return nil, fmt.Errorf("device needs a driver with an interface: %w", wifi.ErrInvalidArgument)
	}
	caps, err := driver.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading capabilities of %s: %w", driver.Interface(), err)
	}

	d := &Device{
		iface:       driver.Interface(),
		driver:      driver,
		caps:        caps,
		cfg:         opts.Config.withDefaults(),
		logger:      opts.Logger,
		ip:          opts.IP,
		prompter:    opts.Prompter,
		notifier:    opts.Notifier,
		known:       opts.Known,
		invalid:     opts.Invalid,
		bestChanged: make(chan struct{}, 1),
		keyCh:       make(chan struct{}, 1),
		strength:    -1,
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	d.logger = d.logger.With("iface", d.iface)
	if d.ip == nil {
		d.ip = ipconfig.Always(ipconfig.StatusBound)
	}
	if d.prompter == nil {
		d.prompter = discard{}
	}
	if d.notifier == nil {
		d.notifier = discard{}
	}
	if d.known == nil {
		d.known = wifi.StaticNetworks(nil)
	}
	if d.invalid == nil {
		d.invalid = wifi.NewInvalidList()
	}
	d.registry = NewRegistry(d.cfg.SnapshotDepth, d.known)
	d.registry.SetMaxQuality(caps.MaxQuality)

	if caps.Support == wifi.SupportUnsupported {
		d.logger.Warn("driver does not support wireless control")
	}
	return d, nil
}

func (d *Device) Interface() string {
	return d.iface
}

func (d *Device) Capabilities() wifi.Capabilities {
	return d.caps
}

// Registry returns the device's network registry.
func (d *Device) Registry() *Registry {
	return d.registry
}

// Networks returns the currently visible networks.
func (d *Device) Networks() wifi.APList {
	return d.registry.View()
}

func (d *Device) State() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

// IsActivating reports whether an activation is in progress.
func (d *Device) IsActivating() bool {
	return d.State().Activating()
}

// IsScanning reports whether a scan is running or activation is waiting for
// a network to show up.
func (d *Device) IsScanning() bool {
	return d.scanning.Load() || d.State() == StateAwaitingBestAP
}

// LinkActive reports whether the device is associated with its best network,
// as of the last RefreshLink.
func (d *Device) LinkActive() bool {
	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	return d.linkActive
}

// Strength is the smoothed signal strength of the link, or -1.
func (d *Device) Strength() int {
	d.linkMu.Lock()
	defer d.linkMu.Unlock()
	return d.strength
}

func (d *Device) publish(t EventType, essid string) {
	d.notifier.Publish(Event{
		ID:       uuid.New(),
		Type:     t,
		Time:     time.Now(),
		Iface:    d.iface,
		Essid:    essid,
		State:    d.State(),
		Strength: d.Strength(),
	})
}

// transition moves to state to if the move is legal.
func (d *Device) transition(to State) bool {
	d.stateMu.Lock()
	from := d.state
	if from == to && to != StateAssociating {
		d.stateMu.Unlock()
		return true
	}
	if !from.CanTransition(to) {
		d.stateMu.Unlock()
		d.logger.Debug("rejected state transition", "from", from, "to", to)
		return false
	}
	d.state = to
	d.stateMu.Unlock()

	d.logger.Debug("state", "from", from, "to", to)
	essid := ""
	if best := d.BestAP(); best != nil {
		essid = best.Essid()
	}
	d.publish(EventStateChanged, essid)
	return true
}

// BestAP returns the network the device should join, or nil.
func (d *Device) BestAP() *wifi.AccessPoint {
	d.bestMu.Lock()
	defer d.bestMu.Unlock()
	return d.bestAP
}

// SetBestAP replaces the best network and clears the frozen flag.
func (d *Device) SetBestAP(ap *wifi.AccessPoint) {
	d.bestMu.Lock()
	d.bestAP = ap
	d.frozen = false
	d.bestMu.Unlock()
	d.signalBest()
}

func (d *Device) signalBest() {
	select {
	case d.bestChanged <- struct{}{}:
	default:
	}
}

// Freeze locks the best network against automatic selection.
func (d *Device) Freeze() {
	d.bestMu.Lock()
	defer d.bestMu.Unlock()
	if d.bestAP != nil {
		d.frozen = true
	}
}

func (d *Device) Unfreeze() {
	d.bestMu.Lock()
	defer d.bestMu.Unlock()
	d.frozen = false
}

func (d *Device) Frozen() bool {
	d.bestMu.Lock()
	defer d.bestMu.Unlock()
	return d.frozen
}

// UpdateBestAP recomputes the best network. A frozen choice is kept while it
// is still visible and valid, or indefinitely if this device created it.
func (d *Device) UpdateBestAP() *wifi.AccessPoint {
	d.bestMu.Lock()
	prev := d.bestAP
	if prev != nil && d.frozen {
		essid := prev.Essid()
		present := d.registry.ByEssid(essid) != nil
		invalid := prev.Invalid() || d.invalid.Contains(essid)
		if (present && !invalid) || prev.UserCreated() {
			d.bestMu.Unlock()
			return prev
		}
		d.logger.Info("unfreezing best network", "essid", essid, "present", present, "invalid", invalid)
		d.frozen = false
	}
	d.bestMu.Unlock()

	best := Select(d.registry.View(), d.invalid, d.known)

	// Select runs unlocked. Keep a choice made meanwhile.
	d.bestMu.Lock()
	if d.bestAP != prev || d.frozen {
		cur := d.bestAP
		d.bestMu.Unlock()
		return cur
	}
	d.bestAP = best
	d.bestMu.Unlock()
	d.signalBest()
	if best == nil && prev != nil {
		d.resetRadio(context.Background())
	}
	if best != prev {
		if best == nil {
			d.logger.Info("no best network")
		} else {
			d.logger.Info("best network", "essid", best.Essid(), "trusted", best.Trusted())
		}
	}
	return best
}

// resetRadio drops the essid and key and keeps the interface up so scans
// continue.
func (d *Device) resetRadio(ctx context.Context) {
	d.hw("set essid", d.driver.SetEssid(ctx, ""))
	d.hw("set key", d.driver.SetKey(ctx, "", wifi.AuthNone))
	d.hw("set up", d.driver.SetUp(ctx, true))
}

// hw logs a driver error. Driver errors are transient and only mean that the
// current attempt failed.
func (d *Device) hw(op string, err error) bool {
	if err == nil {
		return true
	}
	d.logger.Debug("driver error", "op", op, "error", err)
	return false
}

// invalidate marks ap as failed for every device.
func (d *Device) invalidate(ap *wifi.AccessPoint) {
	if ap == nil {
		return
	}
	essid := ap.Essid()
	d.logger.Info("invalidating network", "essid", essid)
	ap.SetInvalid(true)
	d.invalid.Add(ap)
	d.publish(EventInvalidated, essid)
}

// RefreshLink reads the association state and link quality from the driver.
func (d *Device) RefreshLink(ctx context.Context) bool {
	associated, err := d.driver.Associated(ctx)
	d.hw("associated", err)
	if !associated {
		addr, err := d.driver.APAddress(ctx)
		associated = d.hw("ap address", err) && wifi.ValidAddress(addr)
	}
	essid, err := d.driver.Essid(ctx)
	d.hw("essid", err)

	active := false
	if best := d.BestAP(); associated && best != nil && essid != "" {
		active = essid == best.Essid()
	}

	pct := -1
	if q, err := d.driver.LinkQuality(ctx); d.hw("link quality", err) {
		pct = wifi.QualityToPercent(q, d.caps.MaxQuality)
	}

	d.linkMu.Lock()
	changed := active != d.linkActive
	d.linkActive = active
	if pct >= 0 {
		d.strength = pct
		d.strikes = 0
	} else if d.strikes++; d.strikes > d.cfg.StrengthStrikes {
		d.strength = -1
	}
	d.linkMu.Unlock()

	if changed {
		d.logger.Debug("link changed", "active", active, "essid", essid)
		d.notifier.Publish(Event{
			ID:       uuid.New(),
			Type:     EventLinkChanged,
			Time:     time.Now(),
			Iface:    d.iface,
			Essid:    essid,
			State:    d.State(),
			Strength: d.Strength(),
			Link:     active,
		})
	}
	return active
}

// Close stops any activation.
func (d *Device) Close() error {
	return d.ActivationCancel()
}

func sleep(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Device) associationPause() time.Duration {
	if d.caps.NumFrequencies > 14 {
		return d.cfg.WideAssociationPause
	}
	return d.cfg.AssociationPause
}
