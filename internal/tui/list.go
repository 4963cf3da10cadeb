package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shazow/wifid/wifi"
)

// itemDelegate is our custom list delegate
type itemDelegate struct {
	list.DefaultDelegate
}

func (d itemDelegate) Height() int  { return 1 }
func (d itemDelegate) Spacing() int { return 0 }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(networkItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, listItem)
		return
	}
	fmt.Fprint(w, renderItem(i, index == m.Index()))
}

func itemIcon(i networkItem) string {
	switch {
	case i.best:
		return CurrentTheme.NetworkBestIcon
	case i.known:
		return CurrentTheme.NetworkSavedIcon
	case i.ap.Hidden():
		return CurrentTheme.NetworkUnknownIcon
	case i.ap.Encrypted():
		return CurrentTheme.NetworkSecureIcon
	}
	return CurrentTheme.NetworkOpenIcon
}

func renderItem(i networkItem, selected bool) string {
	title := itemIcon(i) + i.Title()

	const essidColumnWidth = 30
	if len(title) > essidColumnWidth {
		title = title[:essidColumnWidth-1] + "…"
	}
	padding := strings.Repeat(" ", max(essidColumnWidth-lipgloss.Width(title), 0))

	var titleStyle lipgloss.Style
	switch {
	case i.ap.Invalid():
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Disabled)
	case i.best:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Success)
	case i.known:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Saved)
	default:
		titleStyle = lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
	}
	title = titleStyle.Render(title)

	var notes []string
	if i.ap.Mode() == wifi.ModeAdHoc {
		notes = append(notes, "ad-hoc")
	}
	if i.ap.Invalid() {
		notes = append(notes, "invalid")
	}
	suffix := ""
	if len(notes) > 0 {
		suffix = " (" + strings.Join(notes, ", ") + ")"
	}

	var desc string
	if s := i.ap.Strength(); s >= 0 {
		desc = lipgloss.NewStyle().Foreground(CurrentTheme.SignalColor(s)).Render(i.Description()) + suffix
	} else {
		desc = lipgloss.NewStyle().Foreground(CurrentTheme.Subtle).Render(i.Description() + suffix)
	}

	if selected {
		return lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render("▶ ") + title + padding + " " + desc
	}
	return "  " + title + padding + " " + desc
}

// ListModel shows the networks the device can see.
type ListModel struct {
	list    list.Model
	known   wifi.KnownNetworks
	scanner *ScanSchedule
}

var listKeys = struct {
	Scan, Use, Activate, Deactivate, Refresh, Logs, QR key.Binding
}{
	Scan:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
	Use:        key.NewBinding(key.WithKeys("enter", "c"), key.WithHelp("enter", "use")),
	Activate:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto")),
	Deactivate: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "toggle refresh")),
	Logs:       key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "logs")),
	QR:         key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "share")),
}

func NewListModel(known wifi.KnownNetworks, scanner *ScanSchedule) *ListModel {
	l := list.New([]list.Item{}, itemDelegate{}, 0, 0)
	l.Title = fmt.Sprintf("%-31s %s", CurrentTheme.TitleIcon+"Network", "Signal")
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{listKeys.Scan, listKeys.Use, listKeys.Deactivate}
	}
	l.AdditionalFullHelpKeys = func() []key.Binding {
		return append([]key.Binding{listKeys.Activate, listKeys.Refresh, listKeys.Logs, listKeys.QR}, l.AdditionalShortHelpKeys()...)
	}
	l.KeyMap.Quit = key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit"))
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true)
	l.Styles.FilterPrompt = lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
	l.Styles.FilterCursor = lipgloss.NewStyle().Foreground(CurrentTheme.Primary)

	return &ListModel{list: l, known: known, scanner: scanner}
}

func (m *ListModel) Init() tea.Cmd { return nil }

// IsConsumingInput returns whether the filter prompt is open.
func (m *ListModel) IsConsumingInput() bool {
	return m.list.FilterState() == list.Filtering
}

func (m *ListModel) SetSize(w, h int) {
	m.list.SetSize(w, h)
}

func (m *ListModel) isKnown(essid string) bool {
	if m.known == nil || essid == "" {
		return false
	}
	_, ok := m.known.Lookup(essid)
	return ok
}

func (m *ListModel) setNetworks(msg networksMsg) {
	items := make([]list.Item, len(msg.networks))
	for i, ap := range msg.networks {
		items[i] = networkItem{
			ap:    ap,
			best:  msg.best != "" && ap.Essid() == msg.best,
			known: m.isKnown(ap.Essid()),
		}
	}
	m.list.SetItems(items)
}

func (m *ListModel) selected() (networkItem, bool) {
	if len(m.list.Items()) == 0 {
		return networkItem{}, false
	}
	i, ok := m.list.SelectedItem().(networkItem)
	return i, ok
}

func send(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m *ListModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := lipgloss.NewStyle().Margin(1, 2).GetFrameSize()
		listBorderStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true)
		bh, bv := listBorderStyle.GetFrameSize()
		extraVerticalSpace := 6
		m.SetSize(msg.Width-h-bh, msg.Height-v-bv-extraVerticalSpace)
		return m, nil
	case networksMsg:
		m.setNetworks(msg)
		return m, nil
	case tea.KeyMsg:
		if m.IsConsumingInput() {
			break
		}
		switch {
		case key.Matches(msg, m.list.KeyMap.Quit):
			return m, tea.Quit
		case key.Matches(msg, listKeys.Scan):
			return m, send(scanMsg{})
		case key.Matches(msg, listKeys.Activate):
			return m, send(activateMsg{})
		case key.Matches(msg, listKeys.Deactivate):
			return m, send(deactivateMsg{})
		case key.Matches(msg, listKeys.Refresh):
			_, cmd := m.scanner.Toggle()
			return m, cmd
		case key.Matches(msg, listKeys.Logs):
			return m, push(NewLogViewModel())
		case key.Matches(msg, listKeys.Use):
			selected, ok := m.selected()
			if !ok || selected.ap.Hidden() {
				return m, nil
			}
			essid := selected.ap.Essid()
			if selected.ap.NeedsKey() && !selected.known {
				return m, push(NewKeyModel(essid, 0, false))
			}
			return m, send(useMsg{essid: essid})
		case key.Matches(msg, listKeys.QR):
			selected, ok := m.selected()
			if !ok || m.known == nil {
				return m, nil
			}
			kn, ok := m.known.Lookup(selected.ap.Essid())
			if !ok {
				return m, send(statusMsg("Only saved networks can be shared."))
			}
			return m, push(NewQRModel(kn, selected.ap.Hidden()))
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ListModel) View() string {
	var viewBuilder strings.Builder
	listBorderStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).BorderForeground(CurrentTheme.Border)
	help := fmt.Sprintf("\n\n %s ", m.list.Help.View(m))
	viewBuilder.WriteString(listBorderStyle.Render(m.list.View() + help))

	statusText := ""
	if len(m.list.Items()) > 0 {
		statusText = fmt.Sprintf("%d/%d", m.list.Index()+1, len(m.list.Items()))
	}
	viewBuilder.WriteString("\n")
	viewBuilder.WriteString(statusText)
	return lipgloss.NewStyle().Margin(1, 2).Render(viewBuilder.String())
}

func (m *ListModel) FullHelp() [][]key.Binding {
	return m.list.FullHelp()
}

func (m *ListModel) ShortHelp() []key.Binding {
	h := m.list.ShortHelp()
	// Remove up/down from short help
	if len(h) > 2 {
		return h[2:]
	}
	return h
}
