package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// keep is the number of records retained for late subscribers.
const keep = 20

// sink is shared by a TUIHandler and the handlers derived from it with
// WithAttrs and WithGroup.
type sink struct {
	mu   sync.Mutex
	ch   chan<- tea.Msg
	logs []slog.Record
}

// TUIHandler is a slog.Handler that also sends log records to a tea.Program.
// Records are dropped, not queued, while the program is busy.
type TUIHandler struct {
	slog.Handler
	sink *sink
}

// NewTUIHandler creates a new TUIHandler.
func NewTUIHandler(handler slog.Handler, ch chan<- tea.Msg) *TUIHandler {
	return &TUIHandler{
		Handler: handler,
		sink:    &sink{ch: ch},
	}
}

// Handle sends the log message to the tea.Program.
func (h *TUIHandler) Handle(ctx context.Context, r slog.Record) error {
	h.sink.mu.Lock()
	h.sink.logs = append(h.sink.logs, r.Clone())
	if len(h.sink.logs) > keep {
		h.sink.logs = h.sink.logs[1:]
	}
	if h.sink.ch != nil {
		select {
		case h.sink.ch <- LogMsg(r.Clone()):
		default:
		}
	}
	h.sink.mu.Unlock()

	return h.Handler.Handle(ctx, r)
}

func (h *TUIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TUIHandler{Handler: h.Handler.WithAttrs(attrs), sink: h.sink}
}

func (h *TUIHandler) WithGroup(name string) slog.Handler {
	return &TUIHandler{Handler: h.Handler.WithGroup(name), sink: h.sink}
}

// Logs returns the stored log messages.
func (h *TUIHandler) Logs() []slog.Record {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return append([]slog.Record(nil), h.sink.logs...)
}

// LogMsg is a tea.Msg that represents a log message.
type LogMsg slog.Record

// SetOutput sets the output channel for the handler.
func (h *TUIHandler) SetOutput(ch chan<- tea.Msg) {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	h.sink.ch = ch
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

// New builds the daemon logger: text records at level or above written to w,
// wrapped in a TUIHandler so an interface can attach later.
func New(level string, w io.Writer) (*slog.Logger, *TUIHandler, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	h := NewTUIHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}), nil)
	return slog.New(h), h, nil
}

// OpenFile opens path for logging, truncating it. An empty path logs to
// stderr.
func OpenFile(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stderr}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

var defaultHandler *TUIHandler

// Init makes a TUIHandler around handler the default logger.
func Init(handler slog.Handler) *TUIHandler {
	defaultHandler = NewTUIHandler(handler, nil)
	slog.SetDefault(slog.New(defaultHandler))
	return defaultHandler
}

// SetOutput sets the output channel for the default logger.
func SetOutput(ch chan<- tea.Msg) {
	defaultHandler.SetOutput(ch)
}

// Logs returns the stored log messages from the default logger.
func Logs() []slog.Record {
	return defaultHandler.Logs()
}
