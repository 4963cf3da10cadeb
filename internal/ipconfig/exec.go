package ipconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os/exec"
	"strings"
	"time"
)

// Runner runs an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Static is a fixed address assignment used instead of DHCP.
type Static struct {
	Address netip.Prefix
	Gateway netip.Addr
}

// ParseStatic parses "10.0.0.2/24" or "10.0.0.2/24,10.0.0.1".
func ParseStatic(s string) (*Static, error) {
	if s == "" {
		return nil, nil
	}
	addr, gw, _ := strings.Cut(s, ",")
	prefix, err := netip.ParsePrefix(strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("parsing static address: %w", err)
	}
	st := &Static{Address: prefix}
	if gw = strings.TrimSpace(gw); gw != "" {
		st.Gateway, err = netip.ParseAddr(gw)
		if err != nil {
			return nil, fmt.Errorf("parsing static gateway: %w", err)
		}
	}
	return st, nil
}

// Exec configures addresses by running the system DHCP client, link-local
// autoconfiguration daemon or ip(8).
type Exec struct {
	DHCPCommand    []string
	ReleaseCommand []string
	AutoIPCommand  []string
	// Static replaces DHCP when set.
	Static *Static
	// RenewInterval is how often DHCP leases are renewed. Zero disables
	// renewal.
	RenewInterval time.Duration

	Logger *slog.Logger
	Run    Runner
}

var _ Configurator = (*Exec)(nil)

// NewExec returns an Exec using dhclient and avahi-autoipd.
func NewExec(logger *slog.Logger) *Exec {
	return &Exec{
		DHCPCommand:    []string{"dhclient", "-1"},
		ReleaseCommand: []string{"dhclient", "-r"},
		AutoIPCommand:  []string{"avahi-autoipd", "--daemonize", "--wait"},
		Logger:         logger,
		Run:            runCommand,
	}
}

func (e *Exec) run(ctx context.Context, cmd []string, iface string) error {
	if len(cmd) == 0 {
		return exec.ErrNotFound
	}
	args := append(append([]string(nil), cmd[1:]...), iface)
	e.Logger.Debug("running", "cmd", cmd[0], "args", args)
	return e.Run(ctx, cmd[0], args...)
}

func (e *Exec) Configure(ctx context.Context, iface string, autoOnly bool) (Result, error) {
	switch {
	case autoOnly:
		return e.result(e.run(ctx, e.AutoIPCommand, iface), nil)
	case e.Static != nil:
		return e.result(e.configureStatic(ctx, iface), nil)
	}
	err := e.run(ctx, e.DHCPCommand, iface)
	return e.result(err, &execLease{e: e, iface: iface})
}

func (e *Exec) result(err error, lease Lease) (Result, error) {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return Result{Status: StatusNotApplicable}, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Result{Status: StatusFailed}, err
	case err != nil:
		e.Logger.Warn("ip configuration failed", "error", err)
		return Result{Status: StatusFailed}, nil
	}
	return Result{Status: StatusBound, Lease: lease}, nil
}

func (e *Exec) configureStatic(ctx context.Context, iface string) error {
	if err := e.Run(ctx, "ip", "addr", "flush", "dev", iface); err != nil {
		return err
	}
	if err := e.Run(ctx, "ip", "addr", "add", e.Static.Address.String(), "dev", iface); err != nil {
		return err
	}
	if e.Static.Gateway.IsValid() {
		return e.Run(ctx, "ip", "route", "replace", "default", "via", e.Static.Gateway.String(), "dev", iface)
	}
	return nil
}

type execLease struct {
	e     *Exec
	iface string
}

func (l *execLease) RenewIn() time.Duration {
	return l.e.RenewInterval
}

func (l *execLease) Renew(ctx context.Context) error {
	return l.e.run(ctx, l.e.DHCPCommand, l.iface)
}

func (l *execLease) Release(ctx context.Context) error {
	return l.e.run(ctx, l.e.ReleaseCommand, l.iface)
}
