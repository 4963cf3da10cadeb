package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifid/wifi"
)

// keyTypes are offered in this order; tab cycles through them.
var keyTypes = []wifi.KeyType{
	wifi.KeyWPAPassphrase,
	wifi.KeyPassphrase,
	wifi.KeyASCII,
	wifi.KeyHex,
}

// KeyModel asks for the key of a network. As a reply to a device key request
// it answers with SupplyKey, otherwise it joins the network.
type KeyModel struct {
	essid   string
	attempt int
	prompt  bool
	input   textinput.Model
	keyType int
	err     string
}

func NewKeyModel(essid string, attempt int, prompt bool) *KeyModel {
	ti := textinput.New()
	ti.Placeholder = "key"
	ti.CharLimit = 64
	ti.Width = 40
	ti.EchoMode = textinput.EchoPassword
	ti.Focus()
	return &KeyModel{
		essid:   essid,
		attempt: attempt,
		prompt:  prompt,
		input:   ti,
	}
}

func (m *KeyModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *KeyModel) IsConsumingInput() bool {
	return true
}

func (m *KeyModel) KeyType() wifi.KeyType {
	return keyTypes[m.keyType]
}

func (m *KeyModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			if m.prompt {
				return m, tea.Batch(pop, send(supplyKeyMsg{essid: m.essid, key: wifi.CancelKey}))
			}
			return m, pop
		case "tab":
			m.keyType = (m.keyType + 1) % len(keyTypes)
			return m, nil
		case "shift+tab":
			m.keyType = (m.keyType + len(keyTypes) - 1) % len(keyTypes)
			return m, nil
		case "ctrl+r":
			if m.input.EchoMode == textinput.EchoPassword {
				m.input.EchoMode = textinput.EchoNormal
			} else {
				m.input.EchoMode = textinput.EchoPassword
			}
			return m, nil
		case "enter":
			key := m.input.Value()
			if _, err := wifi.HashKey(m.essid, key, m.KeyType()); err != nil || key == "" {
				m.err = "That is not a valid " + m.KeyType().String() + " key."
				return m, nil
			}
			if m.prompt {
				return m, tea.Batch(pop, send(supplyKeyMsg{essid: m.essid, key: key, keyType: m.KeyType()}))
			}
			return m, tea.Batch(pop, send(useMsg{essid: m.essid, key: key, keyType: m.KeyType()}))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *KeyModel) View() string {
	var s strings.Builder
	title := fmt.Sprintf("Key for '%s'", m.essid)
	if m.attempt > 1 {
		title += fmt.Sprintf(" (attempt %d)", m.attempt)
	}
	s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).Render(title))
	s.WriteString("\n\n")
	s.WriteString(m.input.View())
	s.WriteString("\n\n")

	for i, t := range keyTypes {
		label := " " + t.String() + " "
		if i == m.keyType {
			label = lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Reverse(true).Render(label)
		} else {
			label = lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(label)
		}
		s.WriteString(label)
	}
	if m.err != "" {
		s.WriteString("\n\n")
		s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Error).Render(m.err))
	}
	s.WriteString("\n\n")
	s.WriteString(lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render("enter: connect • tab: key type • ctrl+r: reveal • esc: cancel"))

	box := lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).BorderForeground(CurrentTheme.Border).Padding(1, 2)
	return lipgloss.NewStyle().Margin(1, 2).Render(box.Render(s.String()))
}
