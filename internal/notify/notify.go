// Package notify distributes device events to loggers and subscribers.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shazow/wifid/internal/device"
)

// Log writes events to a logger. Noisy events go to debug.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Publish(e device.Event) {
	level := slog.LevelInfo
	switch e.Type {
	case device.EventStateChanged, device.EventStrengthChanged, device.EventScanned,
		device.EventNetworkAppeared, device.EventNetworkDisappeared:
		level = slog.LevelDebug
	case device.EventActivationFailed, device.EventInvalidated:
		level = slog.LevelWarn
	}
	attrs := []any{"iface", e.Iface, "state", e.State}
	if e.Essid != "" {
		attrs = append(attrs, "essid", e.Essid)
	}
	if e.Type == device.EventLinkChanged {
		attrs = append(attrs, "link", e.Link, "strength", e.Strength)
	}
	if e.Attempt > 0 {
		attrs = append(attrs, "attempt", e.Attempt)
	}
	l.Logger.Log(context.Background(), level, e.Type.String(), attrs...)
}

// Broker fans events out to subscribers. A subscriber that falls behind
// loses events rather than stalling the device.
type Broker struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[chan device.Event]struct{}
	dropped int
}

// NewBroker returns a broker without subscribers.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broker{logger: logger, subs: map[chan device.Event]struct{}{}}
}

// Subscribe returns a channel of events buffered to size. The channel is
// closed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, size int) <-chan device.Event {
	ch := make(chan device.Event, size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

func (b *Broker) Publish(e device.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
			b.logger.Debug("dropped event for slow subscriber", "event", e.Type)
		}
	}
}

// Dropped is the number of events lost to full subscribers.
func (b *Broker) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
