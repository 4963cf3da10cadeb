package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifid/internal/device"
	"github.com/shazow/wifid/wifi"
	wifimock "github.com/shazow/wifid/wifi/mock"
)

func init() {
	wifimock.DefaultActionSleep = 0
}

func newTestModel(t *testing.T, known wifi.StaticNetworks) (*model, *device.Device) {
	t.Helper()
	mgr := device.NewManager(device.ManagerOptions{Manual: true})
	prompter := NewPrompter()
	drv := wifimock.New("wlan0")
	dev, err := device.New(context.Background(), drv, device.Options{
		Config: device.Config{
			BringDownPause:   time.Millisecond,
			BringUpPause:     time.Millisecond,
			AssociationPause: time.Millisecond,
			ScanSettle:       time.Millisecond,
			BestAPPoll:       5 * time.Millisecond,
			FindEssidSettle:  time.Millisecond,
		},
		IP:       &wifimock.DHCP{Driver: drv},
		Known:    known,
		Notifier: mgr,
		Prompter: prompter,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	mgr.Add(dev)

	m, err := NewModel(Options{Manager: mgr, Known: known, Prompter: prompter})
	require.NoError(t, err)
	return m, dev
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// collect runs cmd and flattens batches. It must only be used on commands
// that do not block.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func TestNewModelNeedsManager(t *testing.T) {
	_, err := NewModel(Options{})
	assert.ErrorIs(t, err, wifi.ErrInvalidArgument)

	_, err = NewModel(Options{Manager: device.NewManager(device.ManagerOptions{})})
	assert.ErrorIs(t, err, wifi.ErrNotFound)
}

func TestModelNetworks(t *testing.T) {
	m, dev := newTestModel(t, wifi.StaticNetworks{{Essid: "green"}})
	require.True(t, dev.Scan(context.Background()))

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(refreshNetworks(dev)())
	assert.Equal(t, "green", m.best)
	assert.False(t, m.loading)

	items := m.list.list.Items()
	require.NotEmpty(t, items)
	var best []string
	for _, it := range items {
		if it.(networkItem).best {
			best = append(best, it.(networkItem).ap.Essid())
		}
	}
	assert.Equal(t, []string{"green"}, best)
	assert.True(t, items[0].(networkItem).ap.Strength() >= items[1].(networkItem).ap.Strength())

	assert.Contains(t, m.View(), "wlan0")
	assert.Contains(t, m.View(), "green")
}

func TestKeyRequestPushesPrompt(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m.Update(keyRequestMsg{essid: "bay", attempt: 2})
	require.Equal(t, 2, m.stack.Len())
	prompt, ok := m.stack.Top().(*KeyModel)
	require.True(t, ok)
	assert.True(t, prompt.prompt)
	assert.Contains(t, prompt.View(), "attempt 2")
	assert.True(t, m.stack.IsConsumingInput())

	m.Update(popViewMsg{})
	assert.Equal(t, 1, m.stack.Len())
}

func TestPrompterDropsWhenFull(t *testing.T) {
	p := NewPrompter()
	for i := 0; i < 10; i++ {
		p.RequestKey("wlan0", "bay", i)
	}
	assert.Len(t, p.ch, cap(p.ch))
	assert.Equal(t, keyRequestMsg{essid: "bay", attempt: 0}, <-p.ch)
}

func TestKeyModel(t *testing.T) {
	t.Run("supply", func(t *testing.T) {
		m := NewKeyModel("bay", 1, true)
		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		assert.Equal(t, wifi.KeyPassphrase, m.KeyType())
		m.Update(keys("secret"))

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		msgs := collect(cmd)
		assert.Contains(t, msgs, tea.Msg(popViewMsg{}))
		assert.Contains(t, msgs, tea.Msg(supplyKeyMsg{essid: "bay", key: "secret", keyType: wifi.KeyPassphrase}))
	})

	t.Run("use", func(t *testing.T) {
		m := NewKeyModel("home", 0, false)
		m.Update(keys("correct horse"))
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.Contains(t, collect(cmd), tea.Msg(useMsg{essid: "home", key: "correct horse", keyType: wifi.KeyWPAPassphrase}))
	})

	t.Run("invalid key", func(t *testing.T) {
		m := NewKeyModel("bay", 1, true)
		m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
		assert.Equal(t, wifi.KeyHex, m.KeyType())
		m.Update(keys("zz"))
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		assert.Nil(t, cmd)
		assert.Contains(t, m.View(), "not a valid hex key")
	})

	t.Run("cancel prompt", func(t *testing.T) {
		m := NewKeyModel("bay", 1, true)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		assert.Contains(t, collect(cmd), tea.Msg(supplyKeyMsg{essid: "bay", key: wifi.CancelKey}))
	})

	t.Run("cancel join", func(t *testing.T) {
		m := NewKeyModel("bay", 0, false)
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		assert.Equal(t, []tea.Msg{popViewMsg{}}, collect(cmd))
	})
}

func TestListUse(t *testing.T) {
	m, dev := newTestModel(t, wifi.StaticNetworks{{Essid: "green"}})
	require.True(t, dev.Scan(context.Background()))
	m.Update(refreshNetworks(dev)())

	selectEssid := func(essid string) {
		for i, it := range m.list.list.Items() {
			if it.(networkItem).ap.Essid() == essid {
				m.list.list.Select(i)
				return
			}
		}
		t.Fatalf("%s not listed", essid)
	}

	selectEssid("bay")
	_, cmd := m.list.Update(tea.KeyMsg{Type: tea.KeyEnter})
	msgs := collect(cmd)
	require.Len(t, msgs, 1)
	pushed, ok := msgs[0].(pushMsg)
	require.True(t, ok)
	assert.IsType(t, &KeyModel{}, pushed.c)

	selectEssid("green")
	_, cmd = m.list.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []tea.Msg{useMsg{essid: "green"}}, collect(cmd))

	_, cmd = m.list.Update(keys("x"))
	msgs = collect(cmd)
	require.Len(t, msgs, 1)
	pushed, ok = msgs[0].(pushMsg)
	require.True(t, ok)
	assert.IsType(t, &QRModel{}, pushed.c)
}

func TestUseNetwork(t *testing.T) {
	m, dev := newTestModel(t, nil)

	msgs := collect(useNetwork(m.mgr, "wlan0", useMsg{essid: "green"}))
	require.Len(t, msgs, 1)
	assert.Equal(t, statusMsg("Connecting to 'green'..."), msgs[0])
	require.Eventually(t, func() bool { return dev.State() == device.StateActive }, 2*time.Second, time.Millisecond)

	msgs = collect(useNetwork(m.mgr, "wlan0", useMsg{essid: "nowhere"}))
	require.Len(t, msgs, 1)
	assert.IsType(t, errorMsg{}, msgs[0])
}

func TestHandleEvent(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m.handleEvent(device.Event{Type: device.EventActivating, State: device.StateAssociating, Essid: "green"})
	assert.True(t, m.loading)
	assert.Equal(t, "Connecting to 'green'...", m.status)

	m.handleEvent(device.Event{Type: device.EventActivated, State: device.StateActive, Essid: "green"})
	assert.False(t, m.loading)
	assert.Equal(t, "Connected to 'green'.", m.status)

	cmd := m.handleEvent(device.Event{Type: device.EventStrengthChanged, State: device.StateActive, Strength: 42})
	assert.Nil(t, cmd)
	assert.Equal(t, 42, m.strength)
	assert.Contains(t, m.header(), "42%")
}

func TestRenderItem(t *testing.T) {
	ap := wifi.NewAccessPoint("cafe")
	ap.SetStrength(80)
	line := renderItem(networkItem{ap: ap}, true)
	assert.Contains(t, line, "cafe")
	assert.Contains(t, line, "80%")

	ap = wifi.NewAccessPoint("")
	ap.SetStrength(-1)
	ap.SetInvalid(true)
	line = renderItem(networkItem{ap: ap}, false)
	assert.Contains(t, line, "<hidden>")
	assert.Contains(t, line, "invalid")
	assert.True(t, strings.HasPrefix(line, "  "))
}

func TestScanSchedule(t *testing.T) {
	s := NewScanSchedule(time.Hour, func() tea.Msg { return nil })
	assert.False(t, s.Enabled())

	enabled, cmd := s.Toggle()
	assert.True(t, enabled)
	require.NotNil(t, cmd)
	assert.True(t, s.Enabled())

	// Ticks from an older schedule are ignored.
	stale := tickMsg{gen: s.gen - 1}
	assert.Nil(t, s.Update(stale))
	assert.NotNil(t, s.Update(tickMsg{gen: s.gen}))

	enabled, cmd = s.Toggle()
	assert.False(t, enabled)
	assert.Nil(t, cmd)
	assert.Nil(t, s.Update(tickMsg{gen: s.gen}))
}

func TestComponentStack(t *testing.T) {
	base := NewErrorModel(nil)
	s := NewComponentStack(base)
	assert.Nil(t, s.Pop())
	assert.Equal(t, 1, s.Len())

	s.Push(NewLogViewModel())
	assert.Equal(t, 2, s.Len())
	assert.IsType(t, &LogViewModel{}, s.Top())
	assert.Same(t, base, s.Base())

	s.Pop()
	assert.Same(t, base, s.Top())
}
