// Package ipconfig configures the IP layer of an interface once the radio
// link is up.
package ipconfig

import (
	"context"
	"fmt"
	"time"
)

// Status is the outcome of an IP configuration attempt.
type Status int

const (
	StatusFailed Status = iota
	StatusBound
	// StatusNotApplicable means the configurator has nothing to do for this
	// interface, ie. the tool is missing.
	StatusNotApplicable
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusBound:
		return "bound"
	case StatusNotApplicable:
		return "not applicable"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Lease is a bound address that may need periodic renewal.
type Lease interface {
	// RenewIn is how long until the lease must be renewed. Zero means the
	// lease never needs renewal.
	RenewIn() time.Duration
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// Result of Configure. Lease is only set when Status is StatusBound, and may
// be nil even then.
type Result struct {
	Status Status
	Lease  Lease
}

// Bound reports whether an address was acquired.
func (r Result) Bound() bool {
	return r.Status == StatusBound
}

// Configurator brings up the IP layer of an interface.
type Configurator interface {
	// Configure acquires an address for iface. When autoOnly is set only
	// link-local autoconfiguration is attempted, which is what ad-hoc networks
	// without a DHCP server need.
	Configure(ctx context.Context, iface string, autoOnly bool) (Result, error)
}

// Func adapts a function into a Configurator.
type Func func(ctx context.Context, iface string, autoOnly bool) (Result, error)

func (f Func) Configure(ctx context.Context, iface string, autoOnly bool) (Result, error) {
	return f(ctx, iface, autoOnly)
}

// Always returns a Configurator that reports status without doing anything.
func Always(status Status) Configurator {
	return Func(func(context.Context, string, bool) (Result, error) {
		return Result{Status: status}, nil
	})
}
