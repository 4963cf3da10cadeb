// Package tui is a terminal interface for watching and steering a device.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifid/internal/device"
	wifilog "github.com/shazow/wifid/internal/log"
	"github.com/shazow/wifid/wifi"
)

// Options configure the interface.
type Options struct {
	Manager *device.Manager
	// Iface selects the device; empty means the first one.
	Iface string
	Known wifi.KnownNetworks
	// Events is a subscription to the device events.
	Events <-chan device.Event
	// Prompter must be the KeyPrompter of the device.
	Prompter *Prompter
	Logs     *wifilog.TUIHandler
	// Refresh is the interval of the network list refresh.
	Refresh time.Duration
}

// Prompter is a device.KeyPrompter that asks through the interface.
type Prompter struct {
	ch chan tea.Msg
}

var _ device.KeyPrompter = (*Prompter)(nil)

func NewPrompter() *Prompter {
	return &Prompter{ch: make(chan tea.Msg, 4)}
}

// RequestKey queues a key prompt. Requests are dropped while the queue is
// full; the device asks again on its next attempt.
func (p *Prompter) RequestKey(iface, essid string, attempt int) {
	select {
	case p.ch <- keyRequestMsg{essid: essid, attempt: attempt}:
	default:
	}
}

// The main model for our TUI application
type model struct {
	stack   *ComponentStack
	list    *ListModel
	spinner spinner.Model
	scanner *ScanSchedule

	mgr   *device.Manager
	dev   *device.Device
	known wifi.KnownNetworks

	events  <-chan device.Event
	prompts <-chan tea.Msg
	logCh   chan tea.Msg
	logs    *wifilog.TUIHandler
	refresh time.Duration

	loading  bool
	status   string
	state    device.State
	best     string
	strength int
}

// NewModel creates the starting state of our application
func NewModel(opts Options) (*model, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("no manager: %w", wifi.ErrInvalidArgument)
	}
	dev, err := opts.Manager.Device(opts.Iface)
	if err != nil {
		return nil, err
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(CurrentTheme.Primary)

	m := &model{
		spinner:  s,
		mgr:      opts.Manager,
		dev:      dev,
		known:    opts.Known,
		events:   opts.Events,
		logs:     opts.Logs,
		refresh:  opts.Refresh,
		loading:  true,
		status:   "Loading networks...",
		strength: -1,
	}
	if opts.Prompter != nil {
		m.prompts = opts.Prompter.ch
	}
	if m.logs != nil {
		m.logCh = make(chan tea.Msg, 16)
	}
	if m.refresh <= 0 {
		m.refresh = time.Second
	}
	m.scanner = NewScanSchedule(m.refresh, refreshNetworks(dev))
	m.list = NewListModel(opts.Known, m.scanner)
	m.stack = NewComponentStack(m.list)
	return m, nil
}

// Init is the first command that is run when the program starts
func (m *model) Init() tea.Cmd {
	if m.logs != nil {
		m.logs.SetOutput(m.logCh)
	}
	return tea.Batch(
		m.spinner.Tick,
		m.stack.Base().Init(),
		m.scanner.SetSchedule(m.refresh),
		waitEvent(m.events),
		waitMsg(m.prompts),
		waitMsg(m.logCh),
	)
}

// Update handles all incoming messages and updates the model accordingly
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.list.Update(msg)
		return m, nil
	case popViewMsg:
		return m, m.stack.Pop()
	case pushMsg:
		if lv, ok := msg.c.(*LogViewModel); ok && m.logs != nil {
			lv.logs = m.logs.Logs
		}
		return m, m.stack.Push(msg.c)
	case errorMsg:
		m.loading = false
		m.status = ""
		return m, m.stack.Push(NewErrorModel(msg.err))
	case statusMsg:
		m.loading = m.state.Activating()
		m.status = string(msg)
		return m, nil
	case networksMsg:
		m.state, m.best, m.strength = msg.state, msg.best, msg.strength
		if m.status == "Loading networks..." {
			m.loading, m.status = false, ""
		}
		m.list.Update(msg)
		return m, nil
	case tickMsg:
		return m, m.scanner.Update(msg)
	case eventMsg:
		return m, tea.Batch(m.handleEvent(device.Event(msg)), waitEvent(m.events))
	case keyRequestMsg:
		prompt := NewKeyModel(msg.essid, msg.attempt, true)
		return m, tea.Batch(m.stack.Push(prompt), waitMsg(m.prompts))
	case wifilog.LogMsg:
		if msg.Level >= slog.LevelWarn {
			m.status = msg.Message
		}
		return m, waitMsg(m.logCh)
	case scanMsg:
		m.loading = true
		m.status = "Scanning for networks..."
		return m, scanNetworks(m.dev)
	case useMsg:
		m.loading = true
		m.status = fmt.Sprintf("Looking for '%s'...", msg.essid)
		return m, useNetwork(m.mgr, m.dev.Interface(), msg)
	case supplyKeyMsg:
		return m, supplyKey(m.mgr, m.dev.Interface(), msg)
	case activateMsg:
		return m, activate(m.dev)
	case deactivateMsg:
		return m, deactivate(m.dev)
	}

	cmds = append(cmds, m.stack.Update(msg))

	var spinnerCmd tea.Cmd
	m.spinner, spinnerCmd = m.spinner.Update(msg)
	cmds = append(cmds, spinnerCmd)

	return m, tea.Batch(cmds...)
}

func (m *model) handleEvent(e device.Event) tea.Cmd {
	m.state = e.State
	m.loading = e.State.Activating()
	switch e.Type {
	case device.EventActivating:
		m.status = fmt.Sprintf("Connecting to '%s'...", e.Essid)
	case device.EventActivated:
		m.status = fmt.Sprintf("Connected to '%s'.", e.Essid)
	case device.EventActivationFailed:
		m.status = "Connection failed."
	case device.EventNoLongerActive:
		m.status = "Link lost."
	case device.EventInvalidated:
		m.status = fmt.Sprintf("'%s' did not work, skipping it.", e.Essid)
	case device.EventStrengthChanged:
		m.strength = e.Strength
		return nil
	case device.EventStateChanged:
	default:
		return nil
	}
	return refreshNetworks(m.dev)
}

func (m *model) header() string {
	var parts []string
	parts = append(parts, lipgloss.NewStyle().Bold(true).Render(m.dev.Interface()))
	parts = append(parts, m.state.String())
	if m.best != "" {
		parts = append(parts, m.best)
	}
	if m.state == device.StateActive && m.strength >= 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(CurrentTheme.SignalColor(m.strength)).Render(fmt.Sprintf("%d%%", m.strength)))
	}
	if !m.scanner.Enabled() {
		parts = append(parts, lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render("paused"))
	}
	return lipgloss.NewStyle().Margin(0, 2).Render(strings.Join(parts, "  "))
}

// View renders the UI based on the current model state
func (m *model) View() string {
	var s strings.Builder
	s.WriteString("\n")
	s.WriteString(m.header())
	s.WriteString(m.stack.View())

	style := lipgloss.NewStyle().Foreground(CurrentTheme.Primary)
	if m.loading {
		s.WriteString(fmt.Sprintf("\n  %s %s", m.spinner.View(), style.Render(m.status)))
	} else if m.status != "" {
		s.WriteString(fmt.Sprintf("\n  %s", style.Render(m.status)))
	}
	return s.String()
}

// Run shows the interface until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	m, err := NewModel(opts)
	if err != nil {
		return fmt.Errorf("error initializing model: %w", err)
	}
	if m.logs != nil {
		defer m.logs.SetOutput(nil)
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
