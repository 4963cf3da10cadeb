// Package dbusapi exports the daemon's control interface on D-Bus and
// provides a client for it.
package dbusapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/shazow/wifid/internal/device"
	"github.com/shazow/wifid/wifi"
)

const (
	BusName   = "io.github.shazow.wifid"
	Path      = dbus.ObjectPath("/io/github/shazow/wifid")
	Interface = "io.github.shazow.wifid.Manager"

	errNotFound        = Interface + ".Error.NotFound"
	errInvalidArgument = Interface + ".Error.InvalidArgument"
)

// Signal names.
const (
	SignalDeviceStatusChanged = "DeviceStatusChanged"
	SignalGetUserKey          = "GetUserKey"
	SignalNetworkAppeared     = "NetworkAppeared"
	SignalNetworkDisappeared  = "NetworkDisappeared"
)

// Status describes one device.
type Status struct {
	Iface    string
	State    string
	Essid    string
	Strength int32
	Link     bool
	Pending  string
}

// Network describes one visible network.
type Network struct {
	Essid     string
	Address   string
	Strength  int32
	Encrypted bool
	Mode      string
	Best      bool
}

// Emitter sends signals. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Service answers control requests for the devices of a manager and relays
// device events as signals. It also serves as the KeyPrompter of the devices:
// a key request becomes a GetUserKey signal, answered with SupplyKey.
type Service struct {
	mgr    *device.Manager
	logger *slog.Logger

	emitMu  sync.RWMutex
	emitter Emitter
}

var (
	_ device.Notifier    = (*Service)(nil)
	_ device.KeyPrompter = (*Service)(nil)
)

// NewService creates a Service. SetEmitter must be called before signals are
// sent; until then they are dropped.
func NewService(mgr *device.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{mgr: mgr, logger: logger}
}

// SetEmitter replaces the signal sink. It waits for signals being sent to
// the previous one.
func (s *Service) SetEmitter(e Emitter) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.emitter = e
}

func (s *Service) emit(name string, values ...interface{}) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(Path, Interface+"."+name, values...); err != nil {
		s.logger.Warn("emitting signal", "signal", name, "error", err)
	}
}

// Publish relays device events as signals.
func (s *Service) Publish(e device.Event) {
	switch e.Type {
	case device.EventStateChanged, device.EventActivated, device.EventActivationFailed,
		device.EventNoLongerActive, device.EventLinkChanged:
		s.emit(SignalDeviceStatusChanged, e.Iface, e.Type.String(), e.State.String(), e.Essid)
	case device.EventNetworkAppeared:
		s.emit(SignalNetworkAppeared, e.Iface, e.Essid)
	case device.EventNetworkDisappeared:
		s.emit(SignalNetworkDisappeared, e.Iface, e.Essid)
	}
}

// RequestKey asks clients for a key.
func (s *Service) RequestKey(iface, essid string, attempt int) {
	s.emit(SignalGetUserKey, iface, essid, int32(attempt))
}

// Serve claims the bus name, exports the service on conn and blocks until ctx
// is done.
func (s *Service) Serve(ctx context.Context, conn *dbus.Conn) error {
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%s is already owned: %w", BusName, wifi.ErrNotAvailable)
	}
	defer conn.ReleaseName(BusName)

	m := &methods{s}
	if err := conn.Export(m, Path, Interface); err != nil {
		return err
	}
	node := &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspect.Methods(m), Signals: signals},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return err
	}
	s.SetEmitter(conn)
	s.logger.Info("serving d-bus api", "name", BusName)

	<-ctx.Done()
	s.SetEmitter(nil)
	return nil
}

var signals = []introspect.Signal{
	{Name: SignalDeviceStatusChanged, Args: []introspect.Arg{
		{Name: "iface", Type: "s"}, {Name: "event", Type: "s"}, {Name: "state", Type: "s"}, {Name: "essid", Type: "s"},
	}},
	{Name: SignalGetUserKey, Args: []introspect.Arg{
		{Name: "iface", Type: "s"}, {Name: "essid", Type: "s"}, {Name: "attempt", Type: "i"},
	}},
	{Name: SignalNetworkAppeared, Args: []introspect.Arg{{Name: "iface", Type: "s"}, {Name: "essid", Type: "s"}}},
	{Name: SignalNetworkDisappeared, Args: []introspect.Arg{{Name: "iface", Type: "s"}, {Name: "essid", Type: "s"}}},
}

// methods is the exported method set. It is separate from Service so that
// only these become D-Bus methods.
type methods struct {
	s *Service
}

func (m *methods) FindAndUseEssid(iface, essid, key, keyType string) (bool, *dbus.Error) {
	typ, err := wifi.ParseKeyType(keyType)
	if err != nil {
		return false, dbusError(err)
	}
	ok, err := m.s.mgr.FindAndUseEssid(context.Background(), iface, essid, key, typ)
	if err != nil {
		return ok, dbusError(err)
	}
	return ok, nil
}

func (m *methods) SupplyKey(iface, essid, key, keyType string) (bool, *dbus.Error) {
	typ, err := wifi.ParseKeyType(keyType)
	if err != nil {
		return false, dbusError(err)
	}
	ok, err := m.s.mgr.SupplyKey(iface, essid, key, typ)
	if err != nil {
		return ok, dbusError(err)
	}
	return ok, nil
}

func (m *methods) Activate(iface string) *dbus.Error {
	d, err := m.s.mgr.Device(iface)
	if err != nil {
		return dbusError(err)
	}
	return dbusError(d.ActivationBegin())
}

func (m *methods) Deactivate(iface string) *dbus.Error {
	d, err := m.s.mgr.Device(iface)
	if err != nil {
		return dbusError(err)
	}
	return dbusError(d.Deactivate())
}

func (m *methods) Status(iface string) (Status, *dbus.Error) {
	d, err := m.s.mgr.Device(iface)
	if err != nil {
		return Status{}, dbusError(err)
	}
	return StatusOf(d), nil
}

func (m *methods) Networks(iface string) ([]Network, *dbus.Error) {
	d, err := m.s.mgr.Device(iface)
	if err != nil {
		return nil, dbusError(err)
	}
	return NetworksOf(d), nil
}

// StatusOf summarizes d.
func StatusOf(d *device.Device) Status {
	st := Status{
		Iface:    d.Interface(),
		State:    d.State().String(),
		Strength: int32(d.Strength()),
		Link:     d.LinkActive(),
		Pending:  d.PendingKey(),
	}
	if best := d.BestAP(); best != nil {
		st.Essid = best.Essid()
	}
	return st
}

// NetworksOf lists the networks d can see, strongest first.
func NetworksOf(d *device.Device) []Network {
	view := d.Networks()
	wifi.SortAccessPoints(view)
	best := d.BestAP()

	out := make([]Network, 0, len(view))
	for _, ap := range view {
		out = append(out, Network{
			Essid:     ap.Essid(),
			Address:   ap.Address().String(),
			Strength:  int32(ap.Strength()),
			Encrypted: ap.Encrypted(),
			Mode:      ap.Mode().String(),
			Best:      best != nil && best.Essid() == ap.Essid(),
		})
	}
	return out
}

func dbusError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wifi.ErrNotFound):
		return dbus.NewError(errNotFound, []interface{}{err.Error()})
	case errors.Is(err, wifi.ErrInvalidArgument):
		return dbus.NewError(errInvalidArgument, []interface{}{err.Error()})
	}
	return dbus.MakeFailedError(err)
}
