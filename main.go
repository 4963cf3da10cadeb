package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/peterbourgon/ff/v3/fftoml"

	"github.com/shazow/wifid/internal/dbusapi"
	"github.com/shazow/wifid/internal/device"
	wifilog "github.com/shazow/wifid/internal/log"
	"github.com/shazow/wifid/internal/profiles"
	"github.com/shazow/wifid/internal/tui"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

const envPrefix = "WIFID"

func defaultProfilesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "profiles.toml"
	}
	return filepath.Join(dir, "wifid", "profiles.toml")
}

// splitList splits a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// deviceFlags binds the device tuning flags to fs.
func deviceFlags(fs *flag.FlagSet) *device.Config {
	cfg := device.DefaultConfig()
	fs.IntVar(&cfg.SnapshotDepth, "snapshot-depth", cfg.SnapshotDepth, "number of scans a network stays visible after it disappears")
	fs.IntVar(&cfg.StrengthStrikes, "strength-strikes", cfg.StrengthStrikes, "unreadable signal samples tolerated before the strength is unknown")
	fs.DurationVar(&cfg.AssociationPause, "assoc-pause", cfg.AssociationPause, "time to wait for association")
	fs.DurationVar(&cfg.WideAssociationPause, "wide-assoc-pause", cfg.WideAssociationPause, "time to wait for association on cards with more than 14 frequencies")
	fs.DurationVar(&cfg.BringDownPause, "bring-down-pause", cfg.BringDownPause, "settle time after taking the interface down")
	fs.DurationVar(&cfg.BringUpPause, "bring-up-pause", cfg.BringUpPause, "settle time after bringing the interface up")
	fs.DurationVar(&cfg.CancelTimeout, "cancel-timeout", cfg.CancelTimeout, "how long cancelling an activation may take")
	return &cfg
}

func subcommandOptions() []ff.Option {
	return []ff.Option{ff.WithEnvVarPrefix(envPrefix)}
}

// main is the entry point of the application
func main() {
	var (
		rootFlagSet = flag.NewFlagSet("wifid", flag.ExitOnError)
		_           = rootFlagSet.String("config", "", "path to a TOML config file (env: WIFID_CONFIG)")
		logLevel    = rootFlagSet.String("log-level", "info", "log level: debug, info, warn or error")
		logFile     = rootFlagSet.String("log-file", "", "write logs to this file instead of stderr")
		profilePath = rootFlagSet.String("profiles", defaultProfilesPath(), "known network store, .toml or .db")
		session     = rootFlagSet.Bool("session", false, "use the session bus instead of the system bus")
		version     = rootFlagSet.Bool("version", false, "display version")
	)

	// openLogger builds the logger. With quiet set, records only go to the
	// log file and the interface log view.
	openLogger := func(quiet bool) (*slog.Logger, *wifilog.TUIHandler, io.Closer, error) {
		var w io.WriteCloser
		if quiet && *logFile == "" {
			w = nopCloser{io.Discard}
		} else {
			f, err := wifilog.OpenFile(*logFile)
			if err != nil {
				return nil, nil, nil, err
			}
			w = f
		}
		logger, handler, err := wifilog.New(*logLevel, w)
		if err != nil {
			w.Close()
			return nil, nil, nil, err
		}
		return logger, handler, w, nil
	}

	dial := func() (*dbusapi.Client, error) {
		return dbusapi.Dial(*session)
	}

	runFlagSet := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		runIfaces   = runFlagSet.String("iface", "", "comma separated interfaces to manage, empty for the first one")
		runDriver   = runFlagSet.String("driver", driverAuto, "driver: auto, nm, wpa or mock")
		runTUI      = runFlagSet.Bool("tui", false, "show the interactive interface")
		runTheme    = runFlagSet.String("theme", "", "path to theme toml file")
		runDBus     = runFlagSet.Bool("dbus", true, "export the control api on d-bus")
		runMetrics  = runFlagSet.String("metrics-addr", "", "serve prometheus metrics on this address")
		runStatic   = runFlagSet.String("static", "", "static address instead of dhcp: 10.0.0.2/24[,gateway]")
		runRenew    = runFlagSet.Duration("renew", 0, "dhcp renewal interval, 0 to let the client handle it")
		runManual   = runFlagSet.Bool("manual", false, "only activate when asked")
		runScanFast = runFlagSet.Duration("scan-fast", device.ScanFast, "scan interval without a link")
		runScanSlow = runFlagSet.Duration("scan-slow", device.ScanSlow, "scan interval with a link")
		runDevice   = deviceFlags(runFlagSet)
	)
	runCmd := &ffcli.Command{
		Name:       "run",
		ShortUsage: "wifid run [flags]",
		ShortHelp:  "Run the daemon",
		FlagSet:    runFlagSet,
		Options:    subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if err := tui.LoadThemeFile(*runTheme); err != nil {
				return fmt.Errorf("error loading theme: %w", err)
			}
			logger, handler, closer, err := openLogger(*runTUI)
			if err != nil {
				return err
			}
			defer closer.Close()

			d, err := newDaemon(ctx, daemonConfig{
				Ifaces:      splitList(*runIfaces),
				Driver:      *runDriver,
				Device:      *runDevice,
				Profiles:    *profilePath,
				Static:      *runStatic,
				RenewEvery:  *runRenew,
				MetricsAddr: *runMetrics,
				DBus:        *runDBus,
				Session:     *session,
				TUI:         *runTUI,
				Manual:      *runManual,
				ScanFast:    *runScanFast,
				ScanSlow:    *runScanSlow,
				Logger:      logger,
				Logs:        handler,
			})
			if err != nil {
				return err
			}
			defer d.Close()
			return d.Run(ctx)
		},
	}

	listFlagSet := flag.NewFlagSet("list", flag.ExitOnError)
	var (
		listIface  = listFlagSet.String("iface", "", "interface to scan with")
		listDriver = listFlagSet.String("driver", driverAuto, "driver: auto, nm, wpa or mock")
		listDaemon = listFlagSet.Bool("daemon", false, "ask the running daemon instead of scanning")
		listDevice = deviceFlags(listFlagSet)
	)
	listCmd := &ffcli.Command{
		Name:       "list",
		ShortUsage: "wifid list [flags]",
		ShortHelp:  "List wifi networks",
		FlagSet:    listFlagSet,
		Options:    subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if *listDaemon {
				c, err := dial()
				if err != nil {
					return err
				}
				defer c.Close()
				return runNetworks(ctx, os.Stdout, c, *listIface)
			}

			logger, _, closer, err := openLogger(false)
			if err != nil {
				return err
			}
			defer closer.Close()
			store, err := profiles.Open(*profilePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			drv, _, err := openDriver(ctx, *listDriver, *listIface, logger)
			if err != nil {
				return err
			}
			if c, ok := drv.(io.Closer); ok {
				defer c.Close()
			}
			return runList(ctx, os.Stdout, drv, store, *listDevice, logger)
		},
	}

	useFlagSet := flag.NewFlagSet("use", flag.ExitOnError)
	var (
		useIface   = useFlagSet.String("iface", "", "interface, empty for the first one")
		useKey     = useFlagSet.String("key", "", "key for the network")
		useKeyType = useFlagSet.String("key-type", "", "key type: hex, ascii, passphrase or wpa")
	)
	useCmd := &ffcli.Command{
		Name:       "use",
		ShortUsage: "wifid use [flags] <essid>",
		ShortHelp:  "Switch to a network, even a hidden one",
		FlagSet:    useFlagSet,
		Options:    subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("use requires an essid")
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return runUse(ctx, os.Stdout, c, *useIface, args[0], *useKey, *useKeyType)
		},
	}

	keyFlagSet := flag.NewFlagSet("key", flag.ExitOnError)
	var (
		keyIface  = keyFlagSet.String("iface", "", "interface, empty for the first one")
		keyType   = keyFlagSet.String("key-type", "hex", "key type: hex, ascii, passphrase or wpa")
		keyCancel = keyFlagSet.Bool("cancel", false, "decline the key request")
	)
	keyCmd := &ffcli.Command{
		Name:       "key",
		ShortUsage: "wifid key [flags] <essid> [key]",
		ShortHelp:  "Answer a key request of the daemon",
		FlagSet:    keyFlagSet,
		Options:    subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("key requires an essid")
			}
			var key string
			if len(args) > 1 {
				key = args[1]
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return runKey(ctx, os.Stdout, c, *keyIface, args[0], key, *keyType, *keyCancel)
		},
	}

	statusFlagSet := flag.NewFlagSet("status", flag.ExitOnError)
	statusIface := statusFlagSet.String("iface", "", "interface, empty for the first one")
	statusCmd := &ffcli.Command{
		Name:       "status",
		ShortUsage: "wifid status [flags]",
		ShortHelp:  "Show the device state",
		FlagSet:    statusFlagSet,
		Options:    subcommandOptions(),
		Exec: func(ctx context.Context, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			return runStatus(ctx, os.Stdout, c, *statusIface)
		},
	}

	knownCmd := &ffcli.Command{
		Name:       "known",
		ShortUsage: "wifid known",
		ShortHelp:  "List remembered networks",
		Exec: func(ctx context.Context, args []string) error {
			store, err := profiles.Open(*profilePath, nil)
			if err != nil {
				return err
			}
			defer store.Close()
			return runKnown(os.Stdout, store)
		},
	}

	qrFlagSet := flag.NewFlagSet("qr", flag.ExitOnError)
	qrHidden := qrFlagSet.Bool("hidden", false, "network is hidden")
	qrCmd := &ffcli.Command{
		Name:       "qr",
		ShortUsage: "wifid qr [flags] <essid>",
		ShortHelp:  "Show a QR code to share a remembered network",
		FlagSet:    qrFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("qr requires an essid")
			}
			store, err := profiles.Open(*profilePath, nil)
			if err != nil {
				return err
			}
			defer store.Close()
			return runQR(os.Stdout, store, args[0], *qrHidden)
		},
	}

	root := &ffcli.Command{
		ShortUsage:  "wifid [flags] <subcommand> [args...]",
		FlagSet:     rootFlagSet,
		Subcommands: []*ffcli.Command{runCmd, listCmd, useCmd, keyCmd, statusCmd, knownCmd, qrCmd},
		Options: []ff.Option{
			ff.WithEnvVarPrefix(envPrefix),
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(fftoml.Parser),
			ff.WithAllowMissingConfigFile(true),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}

	if err := root.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *version {
		fmt.Println(Version)
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.Run(ctx); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, ffcli.DefaultUsageFunc(root))
			cancel()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
