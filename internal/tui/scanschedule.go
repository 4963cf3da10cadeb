package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const ScanOff = 0

// ScanSchedule triggers a callback at a regular interval while enabled.
type ScanSchedule struct {
	callback func() tea.Msg
	interval time.Duration
	// on is the interval Toggle switches back to.
	on time.Duration
	// gen discards ticks scheduled before the last change.
	gen int
}

// NewScanSchedule creates a ScanSchedule that runs every interval once
// enabled.
func NewScanSchedule(interval time.Duration, callback func() tea.Msg) *ScanSchedule {
	return &ScanSchedule{
		callback: callback,
		on:       interval,
	}
}

// Enabled reports whether the schedule is running.
func (s *ScanSchedule) Enabled() bool {
	return s.interval != ScanOff
}

// Toggle enables or disables the scan schedule.
func (s *ScanSchedule) Toggle() (bool, tea.Cmd) {
	if s.interval == ScanOff {
		return true, s.SetSchedule(s.on)
	}
	return false, s.SetSchedule(ScanOff)
}

// SetSchedule sets the scan interval.
func (s *ScanSchedule) SetSchedule(interval time.Duration) tea.Cmd {
	isStarting := s.interval == ScanOff && interval != ScanOff
	s.interval = interval
	s.gen++

	if isStarting {
		return tea.Batch(s.callback, s.tick())
	}
	return nil
}

// Update handles messages for the ScanSchedule.
func (s *ScanSchedule) Update(msg tea.Msg) tea.Cmd {
	if s.interval == ScanOff {
		return nil
	}
	if msg, ok := msg.(tickMsg); ok && msg.gen == s.gen {
		return tea.Batch(s.callback, s.tick())
	}
	return nil
}

type tickMsg struct{ gen int }

func (s *ScanSchedule) tick() tea.Cmd {
	if s.interval == ScanOff {
		return nil
	}
	gen := s.gen
	return tea.Tick(s.interval, func(t time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}
