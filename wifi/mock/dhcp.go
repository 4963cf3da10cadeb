package mock

import (
	"context"

	"github.com/shazow/wifid/internal/ipconfig"
)

// DHCP is an ipconfig.Configurator that binds only when the driver would pass
// traffic: associated with the right key.
type DHCP struct {
	Driver *Driver
	// Fail forces every attempt to fail.
	Fail bool

	attempts int
}

var _ ipconfig.Configurator = (*DHCP)(nil)

func (c *DHCP) Configure(ctx context.Context, iface string, autoOnly bool) (ipconfig.Result, error) {
	c.Driver.sleep(ctx)
	c.Driver.mu.Lock()
	c.attempts++
	c.Driver.record("ip", iface)
	c.Driver.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ipconfig.Result{Status: ipconfig.StatusFailed}, err
	}
	if c.Fail || !c.Driver.KeyAccepted() {
		return ipconfig.Result{Status: ipconfig.StatusFailed}, nil
	}
	return ipconfig.Result{Status: ipconfig.StatusBound}, nil
}

// Attempts is the number of Configure calls so far.
func (c *DHCP) Attempts() int {
	c.Driver.mu.Lock()
	defer c.Driver.mu.Unlock()
	return c.attempts
}
