package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shazow/wifid/internal/device"
	"github.com/shazow/wifid/internal/helpers"
	"github.com/shazow/wifid/wifi"
)

// Component is the interface for a TUI component.
type Component interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Component, tea.Cmd)
	View() string
	// IsConsumingInput reports whether key presses belong to a text input.
	IsConsumingInput() bool
}

// Leavable components are told when they are popped off the stack.
type Leavable interface {
	OnLeave() tea.Cmd
}

type (
	popViewMsg struct{}
	pushMsg    struct{ c Component }
	errorMsg   struct{ err error }
	statusMsg  string

	// networksMsg carries a fresh view of the visible networks.
	networksMsg struct {
		networks wifi.APList
		best     string
		state    device.State
		strength int
	}
	eventMsg      device.Event
	keyRequestMsg struct {
		essid   string
		attempt int
	}

	scanMsg       struct{}
	useMsg        struct {
		essid, key string
		keyType    wifi.KeyType
	}
	supplyKeyMsg struct {
		essid, key string
		keyType    wifi.KeyType
	}
	activateMsg   struct{}
	deactivateMsg struct{}
)

func push(c Component) tea.Cmd {
	return func() tea.Msg { return pushMsg{c} }
}

func pop() tea.Msg {
	return popViewMsg{}
}

// networkItem is one row of the network list.
type networkItem struct {
	ap    *wifi.AccessPoint
	best  bool
	known bool
}

func (i networkItem) Title() string {
	if i.ap.Hidden() {
		return "<hidden>"
	}
	return i.ap.Essid()
}

func (i networkItem) Description() string {
	if i.ap.Strength() >= 0 {
		return fmt.Sprintf("%d%%", i.ap.Strength())
	}
	return helpers.LastUsed(i.ap.Timestamp())
}

func (i networkItem) FilterValue() string { return i.ap.Essid() }

// --- Commands that interact with the device ---

func refreshNetworks(d *device.Device) tea.Cmd {
	return func() tea.Msg {
		msg := networksMsg{
			networks: d.Networks(),
			state:    d.State(),
			strength: d.Strength(),
		}
		wifi.SortAccessPoints(msg.networks)
		if best := d.BestAP(); best != nil {
			msg.best = best.Essid()
		}
		return msg
	}
}

func scanNetworks(d *device.Device) tea.Cmd {
	return func() tea.Msg {
		if !d.Scan(context.Background()) {
			return statusMsg("Scan skipped, device is busy.")
		}
		return refreshNetworks(d)()
	}
}

func useNetwork(m *device.Manager, iface string, msg useMsg) tea.Cmd {
	return func() tea.Msg {
		ok, err := m.FindAndUseEssid(context.Background(), iface, msg.essid, msg.key, msg.keyType)
		if err != nil {
			return errorMsg{fmt.Errorf("failed to use network: %w", err)}
		}
		if !ok {
			return errorMsg{fmt.Errorf("network %q: %w", msg.essid, wifi.ErrNotFound)}
		}
		return statusMsg(fmt.Sprintf("Connecting to '%s'...", msg.essid))
	}
}

func supplyKey(m *device.Manager, iface string, msg supplyKeyMsg) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.SupplyKey(iface, msg.essid, msg.key, msg.keyType); err != nil {
			return errorMsg{fmt.Errorf("failed to supply key: %w", err)}
		}
		if msg.key == wifi.CancelKey {
			return statusMsg(fmt.Sprintf("Gave up on '%s'.", msg.essid))
		}
		return statusMsg(fmt.Sprintf("Trying key for '%s'...", msg.essid))
	}
}

func activate(d *device.Device) tea.Cmd {
	return func() tea.Msg {
		if err := d.ActivationBegin(); err != nil {
			return errorMsg{fmt.Errorf("failed to activate: %w", err)}
		}
		return statusMsg("Activating...")
	}
}

func deactivate(d *device.Device) tea.Cmd {
	return func() tea.Msg {
		if err := d.Deactivate(); err != nil {
			return errorMsg{fmt.Errorf("failed to deactivate: %w", err)}
		}
		return statusMsg("Disconnected.")
	}
}

// waitEvent delivers the next device event.
func waitEvent(ch <-chan device.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

// waitMsg delivers the next message from ch.
func waitMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		return <-ch
	}
}
