//go:build !linux

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shazow/wifid/internal/ipconfig"
	"github.com/shazow/wifid/wifi"
)

// openSystemDriver fails on systems without a supported wireless stack. Only
// the mock driver works here.
func openSystemDriver(ctx context.Context, kind, iface string, logger *slog.Logger) (wifi.Driver, ipconfig.Configurator, error) {
	return nil, nil, fmt.Errorf("driver %q on this operating system: %w", kind, wifi.ErrUnsupportedDriver)
}
