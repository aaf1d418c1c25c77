package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayerMetrics tracks pre-validation and forwarding outcomes.
type RelayerMetrics struct {
	validations *prometheus.CounterVec
	forwards    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var (
	relayerMetricsOnce sync.Once
	relayerRegistry    *RelayerMetrics
)

// Relayer returns the lazily-initialised relayer metrics registry.
func Relayer() *RelayerMetrics {
	relayerMetricsOnce.Do(func() {
		relayerRegistry = &RelayerMetrics{
			validations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vledger",
				Subsystem: "relayer",
				Name:      "validations_total",
				Help:      "Pre-validation outcomes segmented by failing check and error kind.",
			}, []string{"outcome", "check", "kind"}),
			forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vledger",
				Subsystem: "relayer",
				Name:      "forwards_total",
				Help:      "Submissions forwarded to the ledger segmented by route and result kind.",
			}, []string{"route", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vledger",
				Subsystem: "relayer",
				Name:      "forward_duration_seconds",
				Help:      "Latency of ledger calls made by the relayer.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			relayerRegistry.validations,
			relayerRegistry.forwards,
			relayerRegistry.latency,
		)
	})
	return relayerRegistry
}

// ObserveValidation records one pre-validation result.
func (m *RelayerMetrics) ObserveValidation(check, kind string, valid bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if valid {
		outcome = "valid"
		check = "none"
		kind = "none"
	}
	m.validations.WithLabelValues(outcome, normalizeLabel(check), normalizeLabel(kind)).Inc()
}

// ObserveForward records a ledger call. kind is "Unknown" for successes.
func (m *RelayerMetrics) ObserveForward(route, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	if kind == "" || kind == "Unknown" {
		kind = "ok"
	}
	m.forwards.WithLabelValues(route, kind).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
