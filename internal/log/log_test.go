package log

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, h, err := New("warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.With("iface", "wlan0").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "iface=wlan0")

	// Derived loggers share the record buffer.
	require.Len(t, h.Logs(), 1)
	assert.Equal(t, "shown", h.Logs()[0].Message)

	_, _, err = New("loud", &buf)
	assert.Error(t, err)
}

func TestTUIHandlerDoesNotBlock(t *testing.T) {
	var buf bytes.Buffer
	ch := make(chan tea.Msg, 1)
	h := NewTUIHandler(slog.NewTextHandler(&buf, nil), ch)
	logger := slog.New(h)

	for i := range keep + 5 {
		logger.Info(fmt.Sprint("message ", i))
	}

	assert.Len(t, ch, 1)
	first := (<-ch).(LogMsg)
	assert.Equal(t, "message 0", first.Message)

	logs := h.Logs()
	require.Len(t, logs, keep)
	assert.Equal(t, fmt.Sprint("message ", keep+4), logs[keep-1].Message)
}
