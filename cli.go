package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/shazow/wifid/internal/dbusapi"
	"github.com/shazow/wifid/internal/device"
	"github.com/shazow/wifid/internal/helpers"
	"github.com/shazow/wifid/qrwifi"
	"github.com/shazow/wifid/wifi"
)

// controller is the part of the daemon API the client commands use.
// *dbusapi.Client implements it.
type controller interface {
	FindAndUseEssid(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error)
	SupplyKey(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error)
	Status(ctx context.Context, iface string) (dbusapi.Status, error)
	Networks(ctx context.Context, iface string) ([]dbusapi.Network, error)
}

var _ controller = (*dbusapi.Client)(nil)

func formatNetwork(n dbusapi.Network) string {
	var parts []string
	if n.Strength >= 0 {
		parts = append(parts, fmt.Sprintf("%d%%", n.Strength))
	}
	if n.Encrypted {
		parts = append(parts, "secure")
	}
	if n.Mode == wifi.ModeAdHoc.String() {
		parts = append(parts, "ad-hoc")
	}
	if n.Best {
		parts = append(parts, "best")
	}
	return strings.Join(parts, ", ")
}

func writeNetworks(w io.Writer, networks []dbusapi.Network) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range networks {
		essid := n.Essid
		if essid == "" {
			essid = "<hidden>"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", essid, n.Address, formatNetwork(n))
	}
	return tw.Flush()
}

// runList scans once with drv and prints what it found.
func runList(ctx context.Context, w io.Writer, drv wifi.Driver, known wifi.KnownNetworks, cfg device.Config, logger *slog.Logger) error {
	dev, err := device.New(ctx, drv, device.Options{
		Config: cfg,
		Logger: logger,
		Known:  known,
	})
	if err != nil {
		return err
	}
	defer dev.Close()

	if !dev.Scan(ctx) {
		return fmt.Errorf("scanning %s: %w", dev.Interface(), wifi.ErrOperationFailed)
	}
	dev.UpdateBestAP()
	return writeNetworks(w, dbusapi.NetworksOf(dev))
}

// runNetworks prints the networks a running daemon sees.
func runNetworks(ctx context.Context, w io.Writer, c controller, iface string) error {
	networks, err := c.Networks(ctx, iface)
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	return writeNetworks(w, networks)
}

func runStatus(ctx context.Context, w io.Writer, c controller, iface string) error {
	st, err := c.Status(ctx, iface)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	fmt.Fprintf(w, "Interface: %s\n", st.Iface)
	fmt.Fprintf(w, "State: %s\n", st.State)
	fmt.Fprintf(w, "Network: %s\n", st.Essid)
	fmt.Fprintf(w, "Link: %t\n", st.Link)
	if st.Strength >= 0 {
		fmt.Fprintf(w, "Strength: %d%%\n", st.Strength)
	}
	if st.Pending != "" {
		fmt.Fprintf(w, "Waiting for key: %s\n", st.Pending)
	}
	return nil
}

func runUse(ctx context.Context, w io.Writer, c controller, iface, essid, key, keyType string) error {
	if essid == "" {
		return fmt.Errorf("use requires an essid: %w", wifi.ErrInvalidArgument)
	}
	kt, err := wifi.ParseKeyType(keyType)
	if err != nil {
		return err
	}
	if key != "" && kt == wifi.KeyNone {
		kt = wifi.KeyWPAPassphrase
	}
	if key != "" {
		if _, err := wifi.HashKey(essid, key, kt); err != nil {
			return err
		}
	}
	found, err := c.FindAndUseEssid(ctx, iface, essid, key, kt)
	if err != nil {
		return fmt.Errorf("failed to use %q: %w", essid, err)
	}
	if !found {
		return fmt.Errorf("network %q: %w", essid, wifi.ErrNotFound)
	}
	fmt.Fprintf(w, "Using %s\n", essid)
	return nil
}

func runKey(ctx context.Context, w io.Writer, c controller, iface, essid, key, keyType string, cancel bool) error {
	if essid == "" {
		return fmt.Errorf("key requires an essid: %w", wifi.ErrInvalidArgument)
	}
	kt, err := wifi.ParseKeyType(keyType)
	if err != nil {
		return err
	}
	switch {
	case cancel:
		key, kt = wifi.CancelKey, wifi.KeyNone
	case key == "":
		return fmt.Errorf("key requires a key or -cancel: %w", wifi.ErrInvalidArgument)
	default:
		if _, err := wifi.HashKey(essid, key, kt); err != nil {
			return err
		}
	}
	ok, err := c.SupplyKey(ctx, iface, essid, key, kt)
	if err != nil {
		return fmt.Errorf("failed to supply key: %w", err)
	}
	if !ok {
		return fmt.Errorf("no key was requested for %q: %w", essid, wifi.ErrNotAvailable)
	}
	fmt.Fprintf(w, "Key sent for %s\n", essid)
	return nil
}

// runKnown lists the remembered networks, most recently used first.
func runKnown(w io.Writer, known wifi.KnownNetworks) error {
	list := known.List()
	slices.SortStableFunc(list, func(a, b wifi.KnownNetwork) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, kn := range list {
		var parts []string
		if kn.Key != "" {
			parts = append(parts, kn.KeyType.String())
		}
		if kn.Trusted {
			parts = append(parts, "trusted")
		}
		if kn.Invalid {
			parts = append(parts, "invalid")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", kn.Essid, strings.Join(parts, ", "), helpers.LastUsed(kn.Timestamp))
	}
	return tw.Flush()
}

func runQR(w io.Writer, known wifi.KnownNetworks, essid string, hidden bool) error {
	kn, ok := known.Lookup(essid)
	if !ok {
		return fmt.Errorf("network %q is not known: %w", essid, wifi.ErrNotFound)
	}
	code, err := qrwifi.GenerateWifiQRCode(kn.Essid, kn.Key, kn.KeyType, hidden)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, code)
	return nil
}
