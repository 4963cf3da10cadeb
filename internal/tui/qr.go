package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifid/qrwifi"
	"github.com/shazow/wifid/wifi"
)

// QRModel shows a saved network as a QR code.
type QRModel struct {
	essid string
	code  string
	err   error
}

func NewQRModel(kn wifi.KnownNetwork, hidden bool) *QRModel {
	code, err := qrwifi.GenerateWifiQRCode(kn.Essid, kn.Key, kn.KeyType, hidden)
	return &QRModel{essid: kn.Essid, code: code, err: err}
}

func (m *QRModel) Init() tea.Cmd            { return nil }
func (m *QRModel) IsConsumingInput() bool { return false }

func (m *QRModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	if _, ok := msg.(tea.KeyMsg); ok {
		return m, pop
	}
	return m, nil
}

func (m *QRModel) View() string {
	if m.err != nil {
		return NewErrorModel(m.err).View()
	}
	title := lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).Render(fmt.Sprintf("Join '%s'", m.essid))
	return lipgloss.NewStyle().Margin(1, 2).Render(title + "\n\n" + m.code)
}
