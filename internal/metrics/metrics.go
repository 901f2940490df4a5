// Package metrics exposes per-target Prometheus collectors for the
// supervisor: desired/observed/responsive gauges and restart/cull counters,
// registered once and served over HTTP by internal/httpapi.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	targetOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mcsupervisor",
			Subsystem: "target",
			Name:      "online",
			Help:      "Whether the target's JVM process is currently observed running (1) or not (0).",
		}, []string{"nick"},
	)
	targetDesiredOnline = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mcsupervisor",
			Subsystem: "target",
			Name:      "desired_online",
			Help:      "Whether the target is desired to be online (1) or stopped (0).",
		}, []string{"nick"},
	)
	targetResponsive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mcsupervisor",
			Subsystem: "target",
			Name:      "responsive",
			Help:      "Whether the last server-list ping against the target succeeded.",
		}, []string{"nick"},
	)
	targetRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcsupervisor",
			Subsystem: "target",
			Name:      "restarts_total",
			Help:      "Number of restarts performed for a target (scheduled or flap-triggered).",
		}, []string{"nick"},
	)
	targetCulled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcsupervisor",
			Subsystem: "target",
			Name:      "culled_total",
			Help:      "Number of duplicate JVM processes terminated by the cull loop.",
		}, []string{"nick"},
	)
	targetTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcsupervisor",
			Subsystem: "target",
			Name:      "ticks_total",
			Help:      "Number of scheduler check ticks executed for a target.",
		}, []string{"nick"},
	)
)

// Register registers all collectors with r. Safe to call multiple times.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		targetOnline, targetDesiredOnline, targetResponsive,
		targetRestarts, targetCulled, targetTicks,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the registered collectors for promhttp scraping.
func Handler() http.Handler { return promhttp.Handler() }

func SetOnline(nick string, online bool) {
	if regOK.Load() {
		targetOnline.WithLabelValues(nick).Set(boolVal(online))
	}
}

func SetDesiredOnline(nick string, desired bool) {
	if regOK.Load() {
		targetDesiredOnline.WithLabelValues(nick).Set(boolVal(desired))
	}
}

func SetResponsive(nick string, responsive bool) {
	if regOK.Load() {
		targetResponsive.WithLabelValues(nick).Set(boolVal(responsive))
	}
}

func IncRestart(nick string) {
	if regOK.Load() {
		targetRestarts.WithLabelValues(nick).Inc()
	}
}

func IncCulled(nick string) {
	if regOK.Load() {
		targetCulled.WithLabelValues(nick).Inc()
	}
}

func IncTick(nick string) {
	if regOK.Load() {
		targetTicks.WithLabelValues(nick).Inc()
	}
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
