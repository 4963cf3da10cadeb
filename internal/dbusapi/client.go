package dbusapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifid/wifi"
)

// Client talks to a running daemon.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the daemon on the system bus, or the session bus if
// session is set.
func Dial(session bool) (*Client, error) {
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
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{conn: conn, obj: conn.Object(BusName, Path)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	call := c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...)
	call.Err = sentinel(call.Err)
	return call
}

// sentinel turns the named errors of the daemon back into wifi errors.
func sentinel(err error) error {
	var name string
	var derr dbus.Error
	var pderr *dbus.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &pderr):
		name = pderr.Name
	default:
		return err
	}
	switch name {
	case errNotFound:
		return fmt.Errorf("%w: %w", wifi.ErrNotFound, err)
	case errInvalidArgument:
		return fmt.Errorf("%w: %w", wifi.ErrInvalidArgument, err)
	}
	return err
}

func (c *Client) FindAndUseEssid(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error) {
	var ok bool
	err := c.call(ctx, "FindAndUseEssid", iface, essid, key, keyType.String()).Store(&ok)
	return ok, err
}

func (c *Client) SupplyKey(ctx context.Context, iface, essid, key string, keyType wifi.KeyType) (bool, error) {
	var ok bool
	err := c.call(ctx, "SupplyKey", iface, essid, key, keyType.String()).Store(&ok)
	return ok, err
}

func (c *Client) Activate(ctx context.Context, iface string) error {
	return c.call(ctx, "Activate", iface).Err
}

func (c *Client) Deactivate(ctx context.Context, iface string) error {
	return c.call(ctx, "Deactivate", iface).Err
}

func (c *Client) Status(ctx context.Context, iface string) (Status, error) {
	var st Status
	err := c.call(ctx, "Status", iface).Store(&st)
	return st, err
}

func (c *Client) Networks(ctx context.Context, iface string) ([]Network, error) {
	var nets []Network
	err := c.call(ctx, "Networks", iface).Store(&nets)
	return nets, err
}

// Signal is a daemon signal with its arguments as strings.
type Signal struct {
	Name string
	Args []string
}

// Watch delivers daemon signals until ctx is done.
func (c *Client) Watch(ctx context.Context) (<-chan Signal, error) {
	match := []dbus.MatchOption{
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchObjectPath(Path),
	}
	if err := c.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return nil, fmt.Errorf("could not add signal match: %w", err)
	}

	raw := make(chan *dbus.Signal, 16)
	c.conn.Signal(raw)
	out := make(chan Signal, 16)

	go func() {
		defer close(out)
		defer func() {
			c.conn.RemoveSignal(raw)
			_ = c.conn.RemoveMatchSignal(match...)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				if sig.Path != Path {
					continue
				}
				s, ok := parseSignal(sig)
				if !ok {
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func parseSignal(sig *dbus.Signal) (Signal, bool) {
	prefix := Interface + "."
	if len(sig.Name) <= len(prefix) || sig.Name[:len(prefix)] != prefix {
		return Signal{}, false
	}
	s := Signal{Name: sig.Name[len(prefix):]}
	for _, v := range sig.Body {
		s.Args = append(s.Args, fmt.Sprint(v))
	}
	return s, true
}
