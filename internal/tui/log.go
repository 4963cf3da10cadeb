package tui

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogViewModel shows the latest log records.
type LogViewModel struct {
	logs func() []slog.Record
}

func NewLogViewModel() *LogViewModel {
	return &LogViewModel{}
}

func (m *LogViewModel) Init() tea.Cmd { return nil }

func (m *LogViewModel) IsConsumingInput() bool { return false }

func (m *LogViewModel) Update(msg tea.Msg) (Component, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			return m, pop
		}
	}
	return m, nil
}

func (m *LogViewModel) View() string {
	var s strings.Builder
	s.WriteString("Latest logs (press 'q' to return):\n\n")
	if m.logs == nil {
		return s.String()
	}

	for _, r := range m.logs() {
		style := lipgloss.NewStyle().Foreground(CurrentTheme.Normal)
		switch {
		case r.Level >= slog.LevelError:
			style = lipgloss.NewStyle().Foreground(CurrentTheme.Error)
		case r.Level < slog.LevelInfo:
			style = lipgloss.NewStyle().Foreground(CurrentTheme.Subtle)
		}
		s.WriteString(style.Render(fmt.Sprintf("%s [%s] %s", r.Time.Format("15:04:05"), r.Level, r.Message)))
		r.Attrs(func(a slog.Attr) bool {
			s.WriteString(style.Render(fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())))
			return true
		})
		s.WriteString("\n")
	}
	return s.String()
}
