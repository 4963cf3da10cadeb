package device

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/shazow/wifid/wifi"
)

const (
	ScanFast = 2 * time.Second
	ScanSlow = 8 * time.Second
)

// Profiles is the known network store as the manager uses it.
type Profiles interface {
	wifi.KnownNetworks
	// Touch marks essid as used now at addr.
	Touch(essid string, addr net.HardwareAddr, t time.Time) error
	RememberKey(essid, key string, keyType wifi.KeyType) error
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	Logger   *slog.Logger
	Profiles Profiles
	// Notifier receives every device event after the manager has seen it.
	Notifier Notifier
	// ScanFast is the scan interval while a device has no link, ScanSlow
	// while it is active.
	ScanFast time.Duration
	ScanSlow time.Duration
	// Manual disables automatic activation.
	Manual bool
}

// Manager runs the control loop of a set of devices: periodic scans,
// automatic activation and link supervision.
type Manager struct {
	logger   *slog.Logger
	profiles Profiles
	notifier Notifier
	fast     time.Duration
	slow     time.Duration
	manual   bool

	mu      sync.RWMutex
	devices []*Device
}

// NewManager creates a Manager. Devices should use it as their Notifier.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		logger:   opts.Logger,
		profiles: opts.Profiles,
		notifier: opts.Notifier,
		fast:     opts.ScanFast,
		slow:     opts.ScanSlow,
		manual:   opts.Manual,
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.notifier == nil {
		m.notifier = discard{}
	}
	if m.fast <= 0 {
		m.fast = ScanFast
	}
	if m.slow <= 0 {
		m.slow = ScanSlow
	}
	return m
}

// Add registers a device.
func (m *Manager) Add(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, d)
}

// Devices returns the registered devices.
func (m *Manager) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Device(nil), m.devices...)
}

// Device returns the device for iface. An empty iface returns the first
// device.
func (m *Manager) Device(iface string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if iface == "" || d.Interface() == iface {
			return d, nil
		}
	}
	if iface == "" {
		return nil, fmt.Errorf("no devices: %w", wifi.ErrNotFound)
	}
	return nil, fmt.Errorf("device %q: %w", iface, wifi.ErrNotFound)
}

// Publish records successful activations in the profile store and forwards
// every event.
func (m *Manager) Publish(e Event) {
	if e.Type == EventActivated && m.profiles != nil {
		var addr net.HardwareAddr
		if d, err := m.Device(e.Iface); err == nil {
			if best := d.BestAP(); best != nil && best.Essid() == e.Essid {
				addr = best.Address()
			}
		}
		go func() {
			if err := m.profiles.Touch(e.Essid, addr, e.Time); err != nil {
				m.logger.Warn("updating known network", "essid", e.Essid, "error", err)
			}
		}()
	}
	m.notifier.Publish(e)
}

// SupplyKey passes a key to a device and remembers it in the profile store.
func (m *Manager) SupplyKey(iface, essid, key string, keyType wifi.KeyType) (bool, error) {
	d, err := m.Device(iface)
	if err != nil {
		return false, err
	}
	consumed := d.SupplyKey(essid, key, keyType)
	if key != wifi.CancelKey && m.profiles != nil {
		if _, err := wifi.HashKey(essid, key, keyType); err != nil {
			return false, fmt.Errorf("key for %q: %w", essid, err)
		}
		if err := m.profiles.RememberKey(essid, key, keyType); err != nil {
			return consumed, fmt.Errorf("remembering key: %w", err)
		}
	}
	return consumed, nil
}

// FindAndUseEssid forces a device onto essid and starts activating it.
func (m *Manager) FindAndUseEssid(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error) {
	d, err := m.Device(iface)
	if err != nil {
		return false, err
	}
	if !d.FindAndUseEssid(ctx, essid, key, keyType) {
		return false, nil
	}
	if key != "" && m.profiles != nil {
		if err := m.profiles.RememberKey(essid, key, keyType); err != nil {
			m.logger.Warn("remembering key", "essid", essid, "error", err)
		}
	}
	return true, d.ActivationBegin()
}

// Run scans and supervises every device until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, d := range m.Devices() {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			m.loop(ctx, d)
		}(d)
	}
	wg.Wait()

	for _, d := range m.Devices() {
		if err := d.Close(); err != nil {
			m.logger.Warn("closing device", "iface", d.Interface(), "error", err)
		}
	}
	return ctx.Err()
}

func (m *Manager) loop(ctx context.Context, d *Device) {
	for {
		m.Tick(ctx, d)

		interval := m.fast
		if d.State() == StateActive {
			interval = m.slow
		}
		if err := sleep(ctx, interval); err != nil {
			return
		}
	}
}

// Tick runs one round of the control loop for d: scan, then start or restart
// activation as needed.
func (m *Manager) Tick(ctx context.Context, d *Device) {
	d.Scan(ctx)
	if m.manual {
		return
	}

	switch d.State() {
	case StateIdle, StateFailed:
		if d.BestAP() == nil {
			return
		}
		if err := d.ActivationBegin(); err != nil {
			m.logger.Warn("starting activation", "iface", d.Interface(), "error", err)
		}
	case StateActive:
		if d.RefreshLink(ctx) {
			return
		}
		m.logger.Info("link lost", "iface", d.Interface())
		d.publish(EventNoLongerActive, d.activeEssid())
		if err := d.ActivationBegin(); err != nil {
			m.logger.Warn("restarting activation", "iface", d.Interface(), "error", err)
		}
	}
}
