package observability

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"vledger/core/events"
)

// LedgerMetrics counts ledger events. It is an events.Emitter so it can sit
// next to the indexer and the websocket broadcaster.
//
// Events are also counted on an OpenTelemetry instrument so they reach the
// OTLP exporter when one is installed.
type LedgerMetrics struct {
	events    *prometheus.CounterVec
	transfers *prometheus.CounterVec
	blocks    prometheus.Gauge
	otlp      metric.Int64Counter
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Ledger returns the metrics registry tracking ledger events.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vledger",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Count of ledger events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vledger",
				Subsystem: "ledger",
				Name:      "transfers_total",
				Help:      "Count of applied transfers segmented by authorization path.",
			}, []string{"kind"}),
			blocks: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vledger",
				Subsystem: "ledger",
				Name:      "block_height",
				Help:      "Number of the last virtual block created.",
			}),
		}
		prometheus.MustRegister(ledgerRegistry.events, ledgerRegistry.transfers, ledgerRegistry.blocks)
		counter, err := otel.Meter("vledger/ledger").Int64Counter("vledger.ledger.events",
			metric.WithDescription("Ledger events by type."))
		if err == nil {
			ledgerRegistry.otlp = counter
		}
	})
	return ledgerRegistry
}

// Emit implements events.Emitter.
func (m *LedgerMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	if m.otlp != nil {
		m.otlp.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", evt.EventType())))
	}
	switch e := evt.(type) {
	case events.TransferApplied:
		m.transfers.WithLabelValues(string(e.Receipt.Kind)).Inc()
	case events.BlockCreated:
		m.blocks.Set(float64(e.Block.Number))
	}
}
