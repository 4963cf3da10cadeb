//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
	"github.com/shazow/wifid/wifi/networkmanager"
	"github.com/shazow/wifid/wifi/wpasupplicant"
)

func openSystemDriver(ctx context.Context, kind, iface string, logger *slog.Logger) (wifi.Driver, ipconfig.Configurator, error) {
	switch kind {
	case driverNM:
		d, err := networkmanager.New(iface, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	case driverWPA:
		if iface == "" {
			return nil, nil, fmt.Errorf("wpa_supplicant needs an interface name: %w", wifi.ErrInvalidArgument)
		}
		d, err := wpasupplicant.New(ctx, iface, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, nil, nil
	case driverAuto, "":
		d, ip, err := openSystemDriver(ctx, driverNM, iface, logger)
		if err == nil {
			return d, ip, nil
		}
		// If NetworkManager is not running, drive wpa_supplicant directly
		logger.Warn("failed to initialize networkmanager driver, falling back to wpa_supplicant", "error", err)
		return openSystemDriver(ctx, driverWPA, iface, logger)
	}
	return nil, nil, fmt.Errorf("driver %q: %w", kind, wifi.ErrUnsupportedDriver)
}
