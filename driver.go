package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
	wifimock "github.com/shazow/wifid/wifi/mock"
)

// Values of -driver.
const (
	driverAuto = "auto"
	driverNM   = "nm"
	driverWPA  = "wpa"
	driverMock = "mock"
)

// defaultMockIface names the simulated card when no interface is given.
const defaultMockIface = "wlan0"

// openDriver opens the driver kind for iface. The returned configurator is
// nil when the driver leaves IP configuration to the system tools.
func openDriver(ctx context.Context, kind, iface string, logger *slog.Logger) (wifi.Driver, ipconfig.Configurator, error) {
	if kind == driverMock {
		if iface == "" {
			iface = defaultMockIface
		}
		drv := wifimock.New(iface)
		return drv, &wifimock.DHCP{Driver: drv}, nil
	}
	drv, ip, err := openSystemDriver(ctx, kind, iface, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s driver: %w", kind, err)
	}
	return drv, ip, nil
}
