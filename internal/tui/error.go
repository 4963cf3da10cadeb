package tui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifid/wifi"
)

// errorHints suggest what to do about the common device failures.
var errorHints = []struct {
	err  error
	hint string
}{
	{wifi.ErrWirelessDisabled, "Wireless is switched off."},
	{wifi.ErrNotFound, "The network is not in range. Scan with s and try again."},
	{wifi.ErrInvalidArgument, "Check the key and its type."},
	{wifi.ErrScanNotReady, "The card is still scanning."},
	{wifi.ErrCancelTimeout, "The driver did not stop in time. The device may need a restart."},
}

// ErrorModel shows an error until any key is pressed.
type ErrorModel struct {
	err  error
	hint string
}

func NewErrorModel(err error) *ErrorModel {
	m := &ErrorModel{err: err}
	for _, h := range errorHints {
		if errors.Is(err, h.err) {
			m.hint = h.hint
			break
		}
	}
	return m
}

func (m *ErrorModel) Init() tea.Cmd { return nil }

func (m *ErrorModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); ok {
		return m, pop
	}
	return m, nil
}

func (m *ErrorModel) View() string {
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder(), true).
		BorderForeground(CurrentTheme.Error).
		Padding(1, 2)
	body := fmt.Sprintf("Error: %s", m.err)
	if m.hint != "" {
		body += "\n\n" + lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(m.hint)
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(box.Render(body))
}

func (m *ErrorModel) IsConsumingInput() bool {
	return false
}
