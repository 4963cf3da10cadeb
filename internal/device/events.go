package device

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what an Event reports.
type EventType int

const (
	EventStateChanged EventType = iota
	EventActivating
	EventActivated
	EventActivationFailed
	EventNoLongerActive
	EventLinkChanged
	EventNetworkAppeared
	EventNetworkDisappeared
	EventStrengthChanged
	EventKeyRequested
	EventInvalidated
	EventAuthFallback
	EventScanned
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state-changed"
	case EventActivating:
		return "activating"
	case EventActivated:
		return "activated"
	case EventActivationFailed:
		return "activation-failed"
	case EventNoLongerActive:
		return "no-longer-active"
	case EventLinkChanged:
		return "link-changed"
	case EventNetworkAppeared:
		return "network-appeared"
	case EventNetworkDisappeared:
		return "network-disappeared"
	case EventStrengthChanged:
		return "strength-changed"
	case EventKeyRequested:
		return "key-requested"
	case EventInvalidated:
		return "invalidated"
	case EventAuthFallback:
		return "auth-fallback"
	case EventScanned:
		return "scanned"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a notification about one device.
type Event struct {
	ID       uuid.UUID
	Type     EventType
	Time     time.Time
	Iface    string
	Essid    string
	State    State
	Strength int
	// Link is set on EventLinkChanged.
	Link bool
	// Attempt is set on EventKeyRequested.
	Attempt int
}

func (e Event) String() string {
	if e.Essid == "" {
		return fmt.Sprintf("%s %s", e.Iface, e.Type)
	}
	return fmt.Sprintf("%s %s %q", e.Iface, e.Type, e.Essid)
}

// Notifier receives device events. Publish must not block.
type Notifier interface {
	Publish(Event)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Publish(e Event) { f(e) }

// Notifiers fans events out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Publish(e Event) {
	for _, n := range ns {
		if n != nil {
			n.Publish(e)
		}
	}
}

// KeyPrompter asks the user for the key of an encrypted network. The answer
// comes back asynchronously through Device.SupplyKey, possibly as
// wifi.CancelKey.
type KeyPrompter interface {
	RequestKey(iface, essid string, attempt int)
}

// KeyPrompterFunc adapts a function into a KeyPrompter.
type KeyPrompterFunc func(iface, essid string, attempt int)

func (f KeyPrompterFunc) RequestKey(iface, essid string, attempt int) { f(iface, essid, attempt) }

type discard struct{}

func (discard) Publish(Event)                 {}
func (discard) RequestKey(string, string, int) {}
