// Package metrics exports device activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shazow/wifid/internal/device"
)

var (
	// Activations counts finished activations by result.
	Activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wifid",
			Name:      "activations_total",
			Help:      "Activations by result: activated, failed or lost",
		},
		[]string{"interface", "result"},
	)

	Scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wifid",
			Name:      "scans_total",
			Help:      "Completed scans",
		},
		[]string{"interface"},
	)

	KeyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wifid",
			Name:      "key_requests_total",
			Help:      "Credential prompts issued",
		},
		[]string{"interface"},
	)

	Invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wifid",
			Name:      "invalidations_total",
			Help:      "Networks marked invalid after failing to connect",
		},
		[]string{"interface"},
	)

	AuthFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wifid",
			Name:      "auth_fallbacks_total",
			Help:      "Shared key attempts that fell back to open system",
		},
		[]string{"interface"},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wifid",
			Name:      "state_transitions_total",
			Help:      "Activation state machine transitions by target state",
		},
		[]string{"interface", "state"},
	)

	// Strength is the last link strength in percent, or -1.
	Strength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wifid",
			Name:      "link_strength_percent",
			Help:      "Signal strength of the active link",
		},
		[]string{"interface"},
	)

	// Networks is the number of networks in the merged scan view.
	Networks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wifid",
			Name:      "visible_networks",
			Help:      "Networks currently visible",
		},
		[]string{"interface"},
	)

	once sync.Once
)

// Init registers all metrics with the default registry. It is safe to call
// more than once.
func Init() {
	once.Do(func() {
		for _, c := range []prometheus.Collector{
			Activations, Scans, KeyRequests, Invalidations, AuthFallbacks,
			Transitions, Strength, Networks,
		} {
			prometheus.DefaultRegisterer.MustRegister(c)
		}
	})
}

// Notifier records device events.
type Notifier struct {
	// Visible reports the number of visible networks of an interface after a
	// scan. Optional.
	Visible func(iface string) int
}

var _ device.Notifier = Notifier{}

func (n Notifier) Publish(e device.Event) {
	switch e.Type {
	case device.EventActivated:
		Activations.WithLabelValues(e.Iface, "activated").Inc()
	case device.EventActivationFailed:
		Activations.WithLabelValues(e.Iface, "failed").Inc()
	case device.EventNoLongerActive:
		Activations.WithLabelValues(e.Iface, "lost").Inc()
		Strength.WithLabelValues(e.Iface).Set(-1)
	case device.EventScanned:
		Scans.WithLabelValues(e.Iface).Inc()
		if n.Visible != nil {
			Networks.WithLabelValues(e.Iface).Set(float64(n.Visible(e.Iface)))
		}
	case device.EventKeyRequested:
		KeyRequests.WithLabelValues(e.Iface).Inc()
	case device.EventInvalidated:
		Invalidations.WithLabelValues(e.Iface).Inc()
	case device.EventAuthFallback:
		AuthFallbacks.WithLabelValues(e.Iface).Inc()
	case device.EventStateChanged:
		Transitions.WithLabelValues(e.Iface, e.State.String()).Inc()
	case device.EventLinkChanged:
		if !e.Link {
			Strength.WithLabelValues(e.Iface).Set(-1)
			return
		}
		Strength.WithLabelValues(e.Iface).Set(float64(e.Strength))
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
