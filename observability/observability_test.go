package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"vledger/core/events"
	"vledger/core/types"
)

func TestLedgerMetricsCountsEvents(t *testing.T) {
	m := Ledger()
	signed := m.transfers.WithLabelValues(string(types.TransferSigned))
	applied := m.events.WithLabelValues(events.TypeTransferApplied)
	beforeSigned := testutil.ToFloat64(signed)
	beforeApplied := testutil.ToFloat64(applied)

	m.Emit(events.TransferApplied{Receipt: types.Receipt{Kind: types.TransferSigned}})
	m.Emit(events.BlockCreated{Block: types.Block{Number: 7}})
	m.Emit(nil)

	require.Equal(t, beforeSigned+1, testutil.ToFloat64(signed))
	require.Equal(t, beforeApplied+1, testutil.ToFloat64(applied))
	require.Equal(t, float64(7), testutil.ToFloat64(m.blocks))
}

func TestRelayerMetricsNormalizesLabels(t *testing.T) {
	m := Relayer()
	rejected := m.validations.WithLabelValues("rejected", "unknown", "unknown")
	valid := m.validations.WithLabelValues("valid", "none", "none")
	beforeRejected := testutil.ToFloat64(rejected)
	beforeValid := testutil.ToFloat64(valid)

	m.ObserveValidation(" ", "", false)
	m.ObserveValidation("deadline", "Expired", true)

	require.Equal(t, beforeRejected+1, testutil.ToFloat64(rejected))
	require.Equal(t, beforeValid+1, testutil.ToFloat64(valid))
}

func findCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("counter %s%v not found", name, labels)
	return 0
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewHTTPMetrics(HTTPMetricsConfig{MetricsPrefix: "edge", LogRequests: true}, nil)
	handler := m.Middleware("teapot")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Request-ID", "req-1")
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/teapot", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	families, err := m.registry.Gather()
	require.NoError(t, err)
	got := findCounter(t, families, "edge_requests_total", map[string]string{
		"route":  "teapot",
		"method": http.MethodPost,
		"status": "418",
	})
	require.Equal(t, float64(1), got)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if !strings.Contains(string(body), "edge_request_duration_seconds") {
		t.Fatalf("expected histogram in exposition output")
	}
}
