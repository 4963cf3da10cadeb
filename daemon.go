package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifid/internal/dbusapi"
	"github.com/shazow/wifid/internal/device"
	"github.com/shazow/wifid/internal/ipconfig"
	wifilog "github.com/shazow/wifid/internal/log"
	"github.com/shazow/wifid/internal/metrics"
	"github.com/shazow/wifid/internal/notify"
	"github.com/shazow/wifid/internal/profiles"
	"github.com/shazow/wifid/internal/tui"
	"github.com/shazow/wifid/wifi"
)

// daemonConfig is everything `wifid run` needs.
type daemonConfig struct {
	Ifaces      []string
	Driver      string
	Device      device.Config
	Profiles    string
	Static      string
	RenewEvery  time.Duration
	MetricsAddr string
	DBus        bool
	Session     bool
	TUI         bool
	Manual      bool
	ScanFast    time.Duration
	ScanSlow    time.Duration

	Logger *slog.Logger
	Logs   *wifilog.TUIHandler
}

// prompters asks every front end for a key. The first answer wins.
type prompters []device.KeyPrompter

func (ps prompters) RequestKey(iface, essid string, attempt int) {
	for _, p := range ps {
		p.RequestKey(iface, essid, attempt)
	}
}

// daemon is a wired manager and its front ends.
type daemon struct {
	cfg      daemonConfig
	logger   *slog.Logger
	store    profiles.Store
	manager  *device.Manager
	broker   *notify.Broker
	service  *dbusapi.Service
	prompter *tui.Prompter
	closers  []io.Closer
}

// newDaemon opens the profile store and a device per interface.
func newDaemon(ctx context.Context, cfg daemonConfig) (*daemon, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	static, err := ipconfig.ParseStatic(cfg.Static)
	if err != nil {
		return nil, err
	}
	store, err := profiles.Open(cfg.Profiles, logger)
	if err != nil {
		return nil, fmt.Errorf("opening profiles: %w", err)
	}

	d := &daemon{
		cfg:    cfg,
		logger: logger,
		store:  store,
		broker: notify.NewBroker(logger),
	}
	d.closers = append(d.closers, store)

	notifiers := device.Notifiers{notify.Log{Logger: logger}, d.broker}
	if cfg.MetricsAddr != "" {
		metrics.Init()
		notifiers = append(notifiers, metrics.Notifier{Visible: d.visible})
	}
	d.manager = device.NewManager(device.ManagerOptions{
		Logger:   logger,
		Profiles: store,
		Notifier: notifiers,
		ScanFast: cfg.ScanFast,
		ScanSlow: cfg.ScanSlow,
		Manual:   cfg.Manual,
	})

	devNotifiers := device.Notifiers{d.manager}
	var keyPrompters prompters
	if cfg.DBus {
		d.service = dbusapi.NewService(d.manager, logger)
		devNotifiers = append(devNotifiers, d.service)
		keyPrompters = append(keyPrompters, d.service)
	}
	if cfg.TUI {
		d.prompter = tui.NewPrompter()
		keyPrompters = append(keyPrompters, d.prompter)
	}

	ifaces := cfg.Ifaces
	if len(ifaces) == 0 {
		ifaces = []string{""}
	}
	invalid := wifi.NewInvalidList()
	for _, iface := range ifaces {
		drv, ip, err := openDriver(ctx, cfg.Driver, iface, logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		if c, ok := drv.(io.Closer); ok {
			d.closers = append(d.closers, c)
		}
		if ip == nil || static != nil {
			exec := ipconfig.NewExec(logger)
			exec.Static = static
			exec.RenewInterval = cfg.RenewEvery
			ip = exec
		}
		dev, err := device.New(ctx, drv, device.Options{
			Config:   cfg.Device,
			Logger:   logger,
			IP:       ip,
			Prompter: keyPrompters,
			Notifier: devNotifiers,
			Known:    store,
			Invalid:  invalid,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.manager.Add(dev)
		logger.Info("managing device", "iface", dev.Interface(), "driver", cfg.Driver)
	}
	return d, nil
}

func (d *daemon) visible(iface string) int {
	dev, err := d.manager.Device(iface)
	if err != nil {
		return 0
	}
	return len(dev.Networks())
}

// Run drives the devices until ctx is done or the interface quits.
func (d *daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("stopped", "component", name, "error", err)
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	if d.service != nil {
		conn, err := connectBus(d.cfg.Session)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, conn)
		spawn("dbus", func(ctx context.Context) error {
			return d.service.Serve(ctx, conn)
		})
	}
	if d.cfg.MetricsAddr != "" {
		spawn("metrics", func(ctx context.Context) error {
			return metrics.Serve(ctx, d.cfg.MetricsAddr, d.logger)
		})
	}
	spawn("manager", d.manager.Run)

	var err error
	if d.prompter != nil {
		err = tui.Run(ctx, tui.Options{
			Manager:  d.manager,
			Known:    d.store,
			Events:   d.broker.Subscribe(ctx, 64),
			Prompter: d.prompter,
			Logs:     d.cfg.Logs,
		})
		cancel()
	} else {
		<-ctx.Done()
	}
	wg.Wait()

	select {
	case runErr := <-errs:
		return runErr
	default:
	}
	return err
}

// Close releases the drivers, buses and profile store.
func (d *daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func connectBus(session bool) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if session {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to d-bus: %w", err)
	}
	return conn, nil
}
